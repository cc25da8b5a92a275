package api

import (
	"context"
	"net/http"
)

// AvatarDependencies defines the interface for mint ingestion.
type AvatarDependencies interface {
	Register(ctx context.Context, tokenID uint64) error
}

type registerResponse struct {
	Status  string `json:"status"`
	TokenID uint64 `json:"token_id"`
}

// AvatarHandler handles avatar registration.
type AvatarHandler struct {
	deps AvatarDependencies
}

// NewAvatarHandler creates a new avatar handler.
func NewAvatarHandler(deps AvatarDependencies) *AvatarHandler {
	return &AvatarHandler{deps: deps}
}

// HandlePostAvatar handles POST /avatars/{id}. Registering a known avatar
// succeeds without changing it.
func (h *AvatarHandler) HandlePostAvatar(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_avatar"
	if !allowMethod(w, r, op, http.MethodPost) {
		return
	}
	id, err := tokenID(r, "/avatars/")
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Register(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Status: "registered", TokenID: id})
}
