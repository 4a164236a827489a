package mediastore

import "time"

// WithClock overrides the service clock in tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}
