// Package store persists wines, readiness results and backfill jobs.
package store

import (
	"context"

	"github.com/cellardesk/cellar-cli/internal/backfill"
	"github.com/cellardesk/cellar-cli/internal/model"
)

// Store is the full persistence surface of the engine: the backfill
// orchestrator's wine and job stores plus the lineup planner's bottle
// query.
type Store interface {
	backfill.WineStore
	backfill.JobStore

	// GetInStockBottles returns all in-stock bottles with their stored
	// structural profile and readiness result, when present.
	GetInStockBottles(ctx context.Context) ([]model.Bottle, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
