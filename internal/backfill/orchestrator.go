package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cellardesk/cellar-cli/internal/config"
	"github.com/cellardesk/cellar-cli/internal/model"
	"github.com/cellardesk/cellar-cli/internal/readiness"
)

// Orchestrator runs backfill jobs as discrete, stateless steps. All state
// that must survive a step boundary lives in the persisted job row; the
// orchestrator itself can be rebuilt from scratch between any two steps.
type Orchestrator struct {
	wines    WineStore
	jobs     JobStore
	calc     *readiness.Calculator
	profiles ProfileSource // optional; nil disables the AI source
	cfg      config.BackfillConfig

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates an Orchestrator. profiles may be nil, in which case every red
// without a stored profile gets the heuristic estimate.
func New(wines WineStore, jobs JobStore, calc *readiness.Calculator, profiles ProfileSource, cfg config.BackfillConfig) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Orchestrator{
		wines:    wines,
		jobs:     jobs,
		calc:     calc,
		profiles: profiles,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start claims the single running slot and creates a new job. Returns
// ErrJobAlreadyRunning when another job is active.
func (o *Orchestrator) Start(ctx context.Context, mode model.BackfillMode) (*model.BackfillJob, error) {
	now := o.now().UTC()
	job := &model.BackfillJob{
		ID:                      uuid.New().String(),
		Mode:                    mode,
		Status:                  model.JobRunning,
		AlgorithmVersionAtStart: o.calc.AlgorithmVersion(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := o.jobs.ClaimJob(ctx, job); err != nil {
		return nil, err
	}
	zap.L().Info("backfill: job started",
		zap.String("job_id", job.ID),
		zap.String("mode", string(mode)),
		zap.Int("algorithm_version", job.AlgorithmVersionAtStart),
	)
	return job, nil
}

// Step processes one batch. It returns done=true once the job has reached a
// terminal state. Per-row errors are recorded on the job and never abort
// the batch; only storage-level failures mark the job failed, preserving
// the cursor for a later resume.
func (o *Orchestrator) Step(ctx context.Context, jobID string) (bool, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobRunning {
		return true, nil
	}

	// Cooperative cancellation: checked only at step boundaries.
	if job.CancelRequested {
		if err := o.jobs.FinishJob(ctx, job.ID, model.JobCancelled); err != nil {
			return false, err
		}
		zap.L().Info("backfill: job cancelled", zap.String("job_id", job.ID))
		return true, nil
	}

	rows, err := o.wines.ListWines(ctx, job.Mode, job.AlgorithmVersionAtStart, job.Cursor, o.cfg.BatchSize)
	if err != nil {
		// Storage is unreachable: park the job as failed with its
		// cursor intact so resume can pick up here.
		if finishErr := o.jobs.FinishJob(ctx, job.ID, model.JobFailed); finishErr != nil {
			zap.L().Error("backfill: mark job failed", zap.String("job_id", job.ID), zap.Error(finishErr))
		}
		return false, eris.Wrap(err, "backfill: list wines")
	}

	if len(rows) == 0 {
		if err := o.jobs.FinishJob(ctx, job.ID, model.JobCompleted); err != nil {
			return false, err
		}
		zap.L().Info("backfill: job completed",
			zap.String("job_id", job.ID),
			zap.Int("processed", job.Processed),
			zap.Int("failed", job.Failed),
		)
		return true, nil
	}

	o.processBatch(ctx, job, rows)

	// Advance the cursor past everything fetched, failures included: a
	// failed row is recorded, not retried forever.
	last := fmt.Sprintf("%d", rows[len(rows)-1].Wine.ID)
	job.Cursor = &last
	job.UpdatedAt = o.now().UTC()

	short := len(rows) < o.cfg.BatchSize
	if short {
		job.Status = model.JobCompleted
	}
	if err := o.jobs.UpdateProgress(ctx, job); err != nil {
		return false, eris.Wrap(err, "backfill: persist progress")
	}

	zap.L().Info("backfill: batch committed",
		zap.String("job_id", job.ID),
		zap.Int("batch", len(rows)),
		zap.Int("processed", job.Processed),
		zap.Int("updated", job.Updated),
		zap.Int("skipped", job.Skipped),
		zap.Int("failed", job.Failed),
	)
	return short, nil
}

// processBatch runs the batch through a bounded worker pool, mutating the
// job's counters in place. Rows are independent; any row may fail without
// affecting its siblings.
func (o *Orchestrator) processBatch(ctx context.Context, job *model.BackfillJob, rows []WineRow) {
	currentYear := o.now().UTC().Year()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, row := range rows {
		g.Go(func() error {
			skipped, err := o.processRow(gctx, row, currentYear, job.Mode)

			mu.Lock()
			defer mu.Unlock()
			job.Processed++
			switch {
			case err != nil:
				job.Failed++
				job.Failures = append(job.Failures, model.RowFailure{
					RowID: row.Wine.ID,
					Error: err.Error(),
				})
			case skipped:
				job.Skipped++
			default:
				job.Updated++
			}
			return nil // row failures never abort the batch
		})
	}
	_ = g.Wait()
}

// processRow recomputes one wine. Returns skipped=true when the stored
// result is already current for the running algorithm version.
func (o *Orchestrator) processRow(ctx context.Context, row WineRow, currentYear int, mode model.BackfillMode) (bool, error) {
	if mode != model.ModeForceAll &&
		row.ExistingVersion != nil && *row.ExistingVersion == o.calc.AlgorithmVersion() {
		return true, nil
	}

	profile := o.fetchProfile(ctx, row.Wine)
	res := o.calc.Compute(row.Wine, currentYear, profile)
	if err := o.wines.SaveReadiness(ctx, row.Wine.ID, res); err != nil {
		return false, eris.Wrapf(err, "save readiness for wine %d", row.Wine.ID)
	}
	return false, nil
}

// fetchProfile asks the AI source for a profile. Unavailability is normal:
// the calculator falls back to the heuristic estimator on nil.
func (o *Orchestrator) fetchProfile(ctx context.Context, wine model.WineRecord) *model.StructuralProfile {
	if o.profiles == nil {
		return nil
	}
	p, err := o.profiles.GetProfile(ctx, wine)
	if err != nil {
		zap.L().Debug("backfill: profile source unavailable",
			zap.Int64("wine_id", wine.ID),
			zap.Error(err),
		)
		return nil
	}
	return p
}

// Run drives Step in a loop until the job reaches a terminal state or the
// context is cancelled. It is the in-process driver; an external scheduler
// may equally call Step once per invocation.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := o.Step(ctx, jobID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Resume validates that the job can continue and re-enters the step loop
// from the persisted cursor. Only running jobs (presumed interrupted) and
// failed jobs are resumable.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case model.JobRunning:
		// interrupted mid-run; continue as-is
	case model.JobFailed:
		job.Status = model.JobRunning
		job.UpdatedAt = o.now().UTC()
		if err := o.jobs.UpdateProgress(ctx, job); err != nil {
			return eris.Wrap(err, "backfill: reopen failed job")
		}
	default:
		return eris.Errorf("backfill: job %s is %s and cannot be resumed", jobID, job.Status)
	}
	zap.L().Info("backfill: resuming job", zap.String("job_id", jobID))
	return o.Run(ctx, jobID)
}

// Cancel requests cooperative cancellation. The running step finishes its
// current batch; the next step observes the flag and finalizes the job.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	if err := o.jobs.RequestCancel(ctx, jobID); err != nil {
		return err
	}
	zap.L().Info("backfill: cancel requested", zap.String("job_id", jobID))
	return nil
}

// Status returns the persisted job state.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*model.BackfillJob, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// Recompute synchronously recomputes readiness for a single wine and
// persists the result.
func (o *Orchestrator) Recompute(ctx context.Context, wineID int64) (*model.ReadinessResult, error) {
	wine, err := o.wines.GetWine(ctx, wineID)
	if err != nil {
		return nil, err
	}
	profile := o.fetchProfile(ctx, *wine)
	res := o.calc.Compute(*wine, o.now().UTC().Year(), profile)
	if err := o.wines.SaveReadiness(ctx, wineID, res); err != nil {
		return nil, eris.Wrapf(err, "backfill: save readiness for wine %d", wineID)
	}
	return &res, nil
}
