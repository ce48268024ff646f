// Package backfill drives batched, resumable recomputation of readiness
// results across the whole wine inventory.
package backfill

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cellardesk/cellar-cli/internal/model"
)

// Sentinel errors surfaced to callers of the job lifecycle API.
var (
	// ErrJobAlreadyRunning means another job holds the single running
	// slot. Stores must return it from ClaimJob without creating a row.
	ErrJobAlreadyRunning = eris.New("backfill: a job is already running")
	// ErrJobNotFound means the job ID does not exist.
	ErrJobNotFound = eris.New("backfill: job not found")
	// ErrWineNotFound means the wine row does not exist.
	ErrWineNotFound = eris.New("backfill: wine not found")
)

// WineRow is one unit of backfill work: the wine plus the algorithm version
// of its existing readiness result, if any. ExistingVersion lets the
// orchestrator skip rows that are already current instead of rewriting
// them.
type WineRow struct {
	Wine            model.WineRecord
	ExistingVersion *int
}

// WineStore is the read/write surface the orchestrator needs over wine
// rows. ListWines pages in primary-key order: rows strictly after cursor
// (nil cursor = from the beginning), at most limit of them, pre-filtered by
// mode against algorithmVersion.
type WineStore interface {
	ListWines(ctx context.Context, mode model.BackfillMode, algorithmVersion int, cursor *string, limit int) ([]WineRow, error)
	GetWine(ctx context.Context, id int64) (*model.WineRecord, error)
	SaveReadiness(ctx context.Context, wineID int64, res model.ReadinessResult) error
}

// JobStore persists backfill job state. ClaimJob must be atomic: it either
// inserts the job as the only running one or fails with
// ErrJobAlreadyRunning, never both.
type JobStore interface {
	ClaimJob(ctx context.Context, job *model.BackfillJob) error
	GetJob(ctx context.Context, id string) (*model.BackfillJob, error)
	UpdateProgress(ctx context.Context, job *model.BackfillJob) error
	FinishJob(ctx context.Context, id string, status model.JobStatus) error
	RequestCancel(ctx context.Context, id string) error
}

// ProfileSource supplies an AI-derived structural profile for a wine, or
// nil when none is available. Implementations must treat unavailability as
// a soft condition, not an error the caller has to handle.
type ProfileSource interface {
	GetProfile(ctx context.Context, wine model.WineRecord) (*model.StructuralProfile, error)
}
