package model

// ReadinessStatus classifies where a wine sits in its drinking life.
type ReadinessStatus string

const (
	StatusTooYoung    ReadinessStatus = "too_young"
	StatusApproaching ReadinessStatus = "approaching"
	StatusPeak        ReadinessStatus = "peak"
	StatusInWindow    ReadinessStatus = "in_window"
	StatusPastPeak    ReadinessStatus = "past_peak"
	StatusReadyNow    ReadinessStatus = "ready_now"
	StatusUnknown     ReadinessStatus = "unknown"
)

// ReadinessResult is the calculator's verdict for one wine. It is written
// whole on every recomputation and is otherwise immutable; a row is stale
// when AlgorithmVersion no longer matches the running calculator's version.
type ReadinessResult struct {
	Score            int             `json:"score"`
	Status           ReadinessStatus `json:"status"`
	DrinkWindowStart int             `json:"drink_window_start"`
	DrinkWindowEnd   int             `json:"drink_window_end"`
	Confidence       Confidence      `json:"confidence"`
	Reasons          []string        `json:"reasons"`
	AlgorithmVersion int             `json:"algorithm_version"`
}
