package allocator

import "github.com/okian/blindbox/pkg/logger"

const defaultCommitRetries = 8

// Option applies a configuration option to the Allocator.
type Option func(*Allocator)

// WithNaturalPreference keeps the natural pool when it still has room instead
// of always taking the first non-full pool in declared order.
func WithNaturalPreference(enabled bool) Option {
	return func(a *Allocator) {
		a.naturalPreference = enabled
	}
}

// WithCommitRetries bounds how many times a commit rejected by the slot
// uniqueness constraint is retried from the collision walk.
func WithCommitRetries(n int) Option {
	return func(a *Allocator) {
		if n >= 0 {
			a.commitRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}
