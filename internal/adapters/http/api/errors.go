package api

import (
	"errors"
	"net/http"

	service "github.com/okian/blindbox/internal/app"
	"github.com/okian/blindbox/internal/domain/allocator"
	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/internal/domain/rarity"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// KindError labels an error with the operation that produced it and a
// sentinel kind callers can match with errors.Is.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind returns a bare kind error for op.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// errorStatus maps a domain error onto its HTTP status and response code.
var errorStatus = []struct {
	kind   error
	status int
	code   string
}{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
	{service.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{allocator.ErrRevealNotOpen, http.StatusForbidden, "reveal_not_open"},
	{allocator.ErrAlreadyRevealed, http.StatusConflict, "already_revealed"},
	{service.ErrRevealInProgress, http.StatusConflict, "reveal_in_progress"},
	{allocator.ErrSlotConflict, http.StatusServiceUnavailable, "slot_conflict"},
	{allocator.ErrAllPoolsFull, http.StatusConflict, "pools_full"},
	{rarity.ErrInvalidReference, http.StatusNotFound, "invalid_reference"},
	{rarity.ErrInvalidRarityClass, http.StatusUnprocessableEntity, "invalid_rarity"},
	{service.ErrMetadataPending, http.StatusNotFound, "metadata_pending"},
	{service.ErrBusy, http.StatusTooManyRequests, "busy"},
	{model.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
	{service.ErrNotStarted, http.StatusServiceUnavailable, "not_started"},
}

// statusFor returns the status and code for err. The first matching kind
// wins.
func statusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.kind) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
