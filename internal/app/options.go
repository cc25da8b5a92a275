package service

import "github.com/okian/blindbox/pkg/logger"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of batch reveal workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the batch queue, which also caps the
// size of a single RevealRange call.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithInflightSize caps how many reveals may run at once.
func WithInflightSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.inflightSize = size
		}
	}
}

// WithCommitRetries overrides the allocator's commit retry budget.
func WithCommitRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.commitRetries = n
		}
	}
}

// WithNaturalPreference keeps Common avatars in their natural pool while it
// has room.
func WithNaturalPreference(enabled bool) Option {
	return func(s *Service) {
		s.naturalPreference = enabled
	}
}

// WithMetadataBaseURI sets the prefix of revealed metadata URIs.
func WithMetadataBaseURI(uri string) Option {
	return func(s *Service) {
		s.metadataBaseURI = uri
	}
}

// WithPlaceholderImageURI sets the prefix of placeholder images.
func WithPlaceholderImageURI(uri string) Option {
	return func(s *Service) {
		s.placeholderImageURI = uri
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
