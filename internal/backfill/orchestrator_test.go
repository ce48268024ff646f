package backfill

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellardesk/cellar-cli/internal/config"
	"github.com/cellardesk/cellar-cli/internal/model"
	"github.com/cellardesk/cellar-cli/internal/readiness"
)

// fakeStore is an in-memory WineStore + JobStore. It applies the same
// mode filtering and cursor paging contract as the SQL stores.
type fakeStore struct {
	mu sync.Mutex

	wines   []model.WineRecord
	results map[int64]model.ReadinessResult
	jobs    map[string]*model.BackfillJob

	listErr     error
	listErrOnce bool
	saveErrFor  map[int64]error

	listCalls int
	saveOrder []int64
}

func newFakeStore(wineCount int) *fakeStore {
	fs := &fakeStore{
		results:    make(map[int64]model.ReadinessResult),
		jobs:       make(map[string]*model.BackfillJob),
		saveErrFor: make(map[int64]error),
	}
	for i := 1; i <= wineCount; i++ {
		fs.wines = append(fs.wines, model.WineRecord{
			ID:          int64(i),
			VintageYear: 2015 + i%8,
			Color:       model.ColorRed,
			Grapes:      []string{"Merlot"},
		})
	}
	return fs
}

func (f *fakeStore) ListWines(_ context.Context, mode model.BackfillMode, algorithmVersion int, cursor *string, limit int) ([]WineRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if f.listErr != nil {
		err := f.listErr
		if f.listErrOnce {
			f.listErr = nil
		}
		return nil, err
	}

	var after int64
	if cursor != nil && *cursor != "" {
		after, _ = strconv.ParseInt(*cursor, 10, 64)
	}

	var out []WineRow
	for _, w := range f.wines {
		if w.ID <= after {
			continue
		}
		var existing *int
		if res, ok := f.results[w.ID]; ok {
			v := res.AlgorithmVersion
			existing = &v
		}
		switch mode {
		case model.ModeMissingOnly:
			if existing != nil {
				continue
			}
		case model.ModeStaleOrMissing:
			if existing != nil && *existing == algorithmVersion {
				continue
			}
		}
		out = append(out, WineRow{Wine: w, ExistingVersion: existing})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetWine(_ context.Context, id int64) (*model.WineRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.wines {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, ErrWineNotFound
}

func (f *fakeStore) SaveReadiness(_ context.Context, wineID int64, res model.ReadinessResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.saveErrFor[wineID]; ok {
		return err
	}
	f.results[wineID] = res
	f.saveOrder = append(f.saveOrder, wineID)
	return nil
}

func (f *fakeStore) ClaimJob(_ context.Context, job *model.BackfillJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Status == model.JobRunning {
			return ErrJobAlreadyRunning
		}
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (*model.BackfillJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) UpdateProgress(_ context.Context, job *model.BackfillJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) FinishJob(_ context.Context, id string, status model.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = status
	return nil
}

func (f *fakeStore) RequestCancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != model.JobRunning {
		return eris.Errorf("job %s is not running", id)
	}
	j.CancelRequested = true
	return nil
}

func newTestOrchestrator(fs *fakeStore, batchSize, workers int) *Orchestrator {
	calc := readiness.New(readiness.DefaultConfig(), readiness.NewEstimator())
	return New(fs, fs, calc, nil, config.BackfillConfig{BatchSize: batchSize, Workers: workers})
}

func TestOrchestrator_RunToCompletion(t *testing.T) {
	fs := newFakeStore(25)
	o := newTestOrchestrator(fs, 10, 4)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	final, err := o.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 25, final.Processed)
	assert.Equal(t, 25, final.Updated)
	assert.Equal(t, 0, final.Skipped)
	assert.Equal(t, 0, final.Failed)
	assert.Len(t, fs.results, 25)
}

func TestOrchestrator_SingleRunningJob(t *testing.T) {
	fs := newFakeStore(5)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	_, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)

	_, err = o.Start(ctx, model.ModeForceAll)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
}

func TestOrchestrator_EmptyInventoryCompletesImmediately(t *testing.T) {
	fs := newFakeStore(0)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)

	done, err := o.Step(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, done)

	final, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
}

func TestOrchestrator_SecondRunSkipsCurrentRows(t *testing.T) {
	fs := newFakeStore(8)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	// Everything is current now; force_all reprocesses but the results do
	// not change.
	before := make(map[int64]model.ReadinessResult, len(fs.results))
	for k, v := range fs.results {
		before[k] = v
	}

	job2, err := o.Start(ctx, model.ModeForceAll)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job2.ID))

	final, _ := o.Status(ctx, job2.ID)
	assert.Equal(t, 8, final.Processed)
	assert.Equal(t, 8, final.Updated)
	assert.Equal(t, before, fs.results, "recomputation must be idempotent")
}

func TestOrchestrator_SkipCountsAlreadyCurrentRows(t *testing.T) {
	fs := newFakeStore(6)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	// Pre-populate half the inventory at the current version.
	calc := readiness.New(readiness.DefaultConfig(), readiness.NewEstimator())
	for id := int64(1); id <= 3; id++ {
		fs.results[id] = calc.Compute(fs.wines[id-1], 2026, nil)
	}

	// List without filtering so current rows reach the batch, then process
	// under a non-force mode: the client-side version check must count
	// rows 1..3 as skipped, not updated.
	rows, err := fs.ListWines(ctx, model.ModeForceAll, o.calc.AlgorithmVersion(), nil, 10)
	require.NoError(t, err)

	job := &model.BackfillJob{ID: "skip-check", Mode: model.ModeStaleOrMissing, Status: model.JobRunning}
	o.processBatch(ctx, job, rows)

	assert.Equal(t, 6, job.Processed)
	assert.Equal(t, 3, job.Skipped)
	assert.Equal(t, 3, job.Updated)
	assert.Equal(t, 0, job.Failed)
}

func TestOrchestrator_RowFailureDoesNotAbortBatch(t *testing.T) {
	fs := newFakeStore(10)
	fs.saveErrFor[4] = eris.New("disk full")
	fs.saveErrFor[7] = eris.New("disk full")
	o := newTestOrchestrator(fs, 20, 3)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	final, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 10, final.Processed)
	assert.Equal(t, 8, final.Updated)
	assert.Equal(t, 2, final.Failed)
	require.Len(t, final.Failures, 2)

	failedIDs := map[int64]bool{}
	for _, f := range final.Failures {
		failedIDs[f.RowID] = true
		assert.Contains(t, f.Error, "disk full")
	}
	assert.True(t, failedIDs[4])
	assert.True(t, failedIDs[7])
}

func TestOrchestrator_StorageErrorFailsJobPreservingCursor(t *testing.T) {
	fs := newFakeStore(30)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)

	// First batch succeeds.
	done, err := o.Step(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, done)

	// Second batch hits a storage failure.
	fs.mu.Lock()
	fs.listErr = eris.New("connection refused")
	fs.listErrOnce = true
	fs.mu.Unlock()

	_, err = o.Step(ctx, job.ID)
	require.Error(t, err)

	failed, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobFailed, failed.Status)
	require.NotNil(t, failed.Cursor)
	assert.Equal(t, "10", *failed.Cursor, "cursor must survive the failure")

	// Resume picks up from the preserved cursor and completes.
	require.NoError(t, o.Resume(ctx, job.ID))
	final, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 30, final.Processed)
	assert.Len(t, fs.results, 30)
}

func TestOrchestrator_CursorMonotonic(t *testing.T) {
	fs := newFakeStore(35)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)

	var prev int64
	for {
		done, err := o.Step(ctx, job.ID)
		require.NoError(t, err)

		cur, _ := o.Status(ctx, job.ID)
		if cur.Cursor != nil {
			pos, err := strconv.ParseInt(*cur.Cursor, 10, 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, pos, prev, "cursor must never move backwards")
			prev = pos
		}
		if done {
			break
		}
	}
	assert.Equal(t, int64(35), prev)
}

func TestOrchestrator_CancelObservedAtStepBoundary(t *testing.T) {
	fs := newFakeStore(40)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)

	done, err := o.Step(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, done)
	processedBefore := len(fs.results)

	require.NoError(t, o.Cancel(ctx, job.ID))

	done, err = o.Step(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, done)

	final, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobCancelled, final.Status)
	assert.Equal(t, processedBefore, len(fs.results), "no rows may be processed after the cancel boundary")
}

func TestOrchestrator_ResumeRejectsTerminalJobs(t *testing.T) {
	fs := newFakeStore(5)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	err = o.Resume(ctx, job.ID)
	assert.Error(t, err)
}

func TestOrchestrator_StepOnUnknownJob(t *testing.T) {
	fs := newFakeStore(5)
	o := newTestOrchestrator(fs, 10, 2)

	_, err := o.Step(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// failingProfileSource simulates an unreachable AI source.
type failingProfileSource struct{}

func (failingProfileSource) GetProfile(context.Context, model.WineRecord) (*model.StructuralProfile, error) {
	return nil, eris.New("api unavailable")
}

// fixedProfileSource returns the same profile for every wine.
type fixedProfileSource struct {
	profile model.StructuralProfile
}

func (s fixedProfileSource) GetProfile(context.Context, model.WineRecord) (*model.StructuralProfile, error) {
	p := s.profile
	return &p, nil
}

func TestOrchestrator_ProfileSourceFailureFallsBackToHeuristic(t *testing.T) {
	fs := newFakeStore(3)
	calc := readiness.New(readiness.DefaultConfig(), readiness.NewEstimator())
	o := New(fs, fs, calc, failingProfileSource{}, config.BackfillConfig{BatchSize: 10, Workers: 2})
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	final, _ := o.Status(ctx, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 0, final.Failed, "a dead profile source is soft, not a row failure")
	for _, res := range fs.results {
		assert.Equal(t, model.ConfidenceLow, res.Confidence)
	}
}

func TestOrchestrator_ProfileSourceRaisesConfidence(t *testing.T) {
	fs := newFakeStore(3)
	calc := readiness.New(readiness.DefaultConfig(), readiness.NewEstimator())
	src := fixedProfileSource{
		profile: model.NewStructuralProfile(4, 3, 3, 3, 0, model.ConfidenceMed, model.ProfileSourceAI),
	}
	o := New(fs, fs, calc, src, config.BackfillConfig{BatchSize: 10, Workers: 2})
	ctx := context.Background()

	job, err := o.Start(ctx, model.ModeMissingOnly)
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, job.ID))

	for _, res := range fs.results {
		assert.Equal(t, model.ConfidenceMed, res.Confidence)
	}
}

func TestOrchestrator_Recompute(t *testing.T) {
	fs := newFakeStore(3)
	o := newTestOrchestrator(fs, 10, 2)
	ctx := context.Background()

	res, err := o.Recompute(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, o.calc.AlgorithmVersion(), res.AlgorithmVersion)
	assert.Equal(t, *res, fs.results[2])

	_, err = o.Recompute(ctx, 99)
	assert.ErrorIs(t, err, ErrWineNotFound)
}
