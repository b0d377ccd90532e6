package store

import (
	"context"

	"github.com/badbayesian/ragonometrics-sub003/cache"
	"github.com/badbayesian/ragonometrics-sub003/dlq"
	"github.com/badbayesian/ragonometrics-sub003/index"
	"github.com/badbayesian/ragonometrics-sub003/job"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend (postgres, sqlite, memory)
// implements all of them.
type Store interface {
	pipeline.Store
	job.Store
	cache.Store
	dlq.Store
	index.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
