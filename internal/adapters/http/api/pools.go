package api

import (
	"context"
	"net/http"
)

// PoolDependencies defines the interface for pool occupancy reads.
type PoolDependencies interface {
	PoolStatus(ctx context.Context) ([]PoolStatus, error)
}

// PoolHandler handles pool occupancy requests.
type PoolHandler struct {
	deps PoolDependencies
}

// NewPoolHandler creates a new pool handler.
func NewPoolHandler(deps PoolDependencies) *PoolHandler {
	return &PoolHandler{deps: deps}
}

// HandleGetPools handles GET /pools requests.
func (h *PoolHandler) HandleGetPools(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, "api.get_pools", http.MethodGet) {
		return
	}
	pools, err := h.deps.PoolStatus(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}
