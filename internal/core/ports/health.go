package ports

import "context"

// HealthChecker is implemented by each backing store so the health
// endpoint can report per-dependency status.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in the health payload.
	Name() string
}
