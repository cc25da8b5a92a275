package api

import (
	"context"
	"net/http"
)

// MetadataDependencies defines the interface for metadata lookups.
type MetadataDependencies interface {
	Metadata(ctx context.Context, avatarID uint64) (Metadata, error)
}

// MetadataHandler handles metadata requests.
type MetadataHandler struct {
	deps MetadataDependencies
}

// NewMetadataHandler creates a new metadata handler.
func NewMetadataHandler(deps MetadataDependencies) *MetadataHandler {
	return &MetadataHandler{deps: deps}
}

// HandleGetMetadata handles GET /metadata/{id} requests.
func (h *MetadataHandler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_metadata"
	if !allowMethod(w, r, op, http.MethodGet) {
		return
	}
	id, err := tokenID(r, "/metadata/")
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	md, err := h.deps.Metadata(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}
