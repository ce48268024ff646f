package model

import "time"

// BackfillMode selects which wine rows a backfill job recomputes.
type BackfillMode string

const (
	// ModeMissingOnly processes wines with no readiness result at all.
	ModeMissingOnly BackfillMode = "missing_only"
	// ModeStaleOrMissing additionally picks up results computed by an
	// older algorithm version.
	ModeStaleOrMissing BackfillMode = "stale_or_missing"
	// ModeForceAll recomputes every wine regardless of existing results.
	ModeForceAll BackfillMode = "force_all"
)

// ValidBackfillMode reports whether s names a known mode.
func ValidBackfillMode(s string) bool {
	switch BackfillMode(s) {
	case ModeMissingOnly, ModeStaleOrMissing, ModeForceAll:
		return true
	}
	return false
}

// JobStatus is the backfill job lifecycle state.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status ends the job's lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobFailed
}

// RowFailure records a single wine row that errored during a batch. Row
// failures never abort the batch; they are surfaced in aggregate.
type RowFailure struct {
	RowID int64  `json:"row_id"`
	Error string `json:"error"`
}

// BackfillJob is the persisted state of one backfill run. All cross-step
// state lives here: the orchestrator holds nothing in memory between steps.
// At most one job may be running at a time, enforced by a conditional insert
// on the job table. Cursor is monotonically non-decreasing across committed
// batches.
type BackfillJob struct {
	ID                      string       `json:"id"`
	Mode                    BackfillMode `json:"mode"`
	Cursor                  *string      `json:"cursor,omitempty"`
	Processed               int          `json:"processed"`
	Updated                 int          `json:"updated"`
	Skipped                 int          `json:"skipped"`
	Failed                  int          `json:"failed"`
	Failures                []RowFailure `json:"failures,omitempty"`
	Status                  JobStatus    `json:"status"`
	AlgorithmVersionAtStart int          `json:"algorithm_version_at_start"`
	CancelRequested         bool         `json:"cancel_requested"`
	CreatedAt               time.Time    `json:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at"`
}
