// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/blindbox/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RevealDependencies
	MetadataDependencies
	AvatarDependencies
	PoolDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	revealHandler   *RevealHandler
	metadataHandler *MetadataHandler
	avatarHandler   *AvatarHandler
	poolHandler     *PoolHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		revealHandler:   NewRevealHandler(deps),
		metadataHandler: NewMetadataHandler(deps),
		avatarHandler:   NewAvatarHandler(deps),
		poolHandler:     NewPoolHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/pools", MetricsMiddleware(s.poolHandler.HandleGetPools, "pools"))
	mux.HandleFunc("/reveal/", MetricsMiddleware(s.revealHandler.HandlePostReveal, "reveal"))
	mux.HandleFunc("/metadata/", MetricsMiddleware(s.metadataHandler.HandleGetMetadata, "metadata"))
	mux.HandleFunc("/avatars/", MetricsMiddleware(s.avatarHandler.HandlePostAvatar, "avatars"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	w.Header().Set(ErrorCodeHeader, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// allowMethod answers anything but method with 405 and reports whether the
// handler should continue.
func allowMethod(w http.ResponseWriter, r *http.Request, op, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeDomainError(w, NewKind(op, ErrMethodNotAllowed))
	return false
}

// writeDomainError maps err through statusFor.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// tokenID extracts the decimal id that follows prefix in the request path.
func tokenID(r *http.Request, prefix string) (uint64, error) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("%w: missing token id", ErrBadRequest)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token id %q is not a decimal integer", ErrBadRequest, raw)
	}
	return id, nil
}

// Response shapes shared with the service layer.
type (
	RevealResult = types.RevealResult
	Metadata     = types.Metadata
	PoolStatus   = types.PoolStatus
)
