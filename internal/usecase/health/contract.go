package health

import "context"

// DBPinger checks backing store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external API provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexCounter reports the number of indexed chunks.
type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}
