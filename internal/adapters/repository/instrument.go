package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/blindbox/pkg/metrics"
)

// observe records latency for op and counts it as a store error when *err
// carries ErrStoreUnavailable. Call it deferred with a pointer to the named
// error result.
func observe(backend, op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && *err != nil && errors.Is(*err, ErrStoreUnavailable) {
		metrics.RecordStoreError(backend, op)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
