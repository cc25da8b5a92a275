package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// RevealDependencies defines the operations behind POST /reveal/{id}.
type RevealDependencies interface {
	Reveal(ctx context.Context, avatarID uint64) (RevealResult, error)
	VerifyOwner(ctx context.Context, avatarID uint64, address string) error
}

// revealRequest is the optional body of POST /reveal/{id}.
type revealRequest struct {
	Owner string `json:"owner"`
}

// RevealHandler handles reveal requests.
type RevealHandler struct {
	deps RevealDependencies
}

// NewRevealHandler creates a new reveal handler.
func NewRevealHandler(deps RevealDependencies) *RevealHandler {
	return &RevealHandler{deps: deps}
}

// HandlePostReveal handles POST /reveal/{id}. When the body names an owner
// the reveal only proceeds if that address owns the avatar.
func (h *RevealHandler) HandlePostReveal(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reveal"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	id, err := tokenID(r, "/reveal/")
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	if owner := strings.TrimSpace(req.Owner); owner != "" {
		if err := h.deps.VerifyOwner(r.Context(), id, owner); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	res, err := h.deps.Reveal(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
