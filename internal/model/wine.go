package model

import "math"

// Color identifies the broad wine type used by the readiness bands.
type Color string

const (
	ColorRed       Color = "red"
	ColorWhite     Color = "white"
	ColorRose      Color = "rose"
	ColorSparkling Color = "sparkling"
)

// Confidence grades how much trust to place in a derived value.
type Confidence string

const (
	ConfidenceLow  Confidence = "low"
	ConfidenceMed  Confidence = "med"
	ConfidenceHigh Confidence = "high"
)

// ProfileSource records where a structural profile came from.
type ProfileSource string

const (
	ProfileSourceAI        ProfileSource = "ai"
	ProfileSourceHeuristic ProfileSource = "heuristic"
)

// WineRecord is the read-only wine row the engine consumes. CRUD over wines
// lives outside this codebase; the engine only ever reads these fields.
type WineRecord struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name,omitempty"`
	VintageYear int      `json:"vintage_year"`
	Color       Color    `json:"color"`
	Grapes      []string `json:"grapes,omitempty"`
	Region      string   `json:"region,omitempty"`
	Appellation *string  `json:"appellation,omitempty"`
}

// StructuralProfile describes a wine's structure on 0-5 axes. Power is
// derived from the five axes via DerivePower and is never set independently.
type StructuralProfile struct {
	Body       int           `json:"body"`
	Tannin     int           `json:"tannin"`
	Acidity    int           `json:"acidity"`
	Oak        int           `json:"oak"`
	Sweetness  int           `json:"sweetness"`
	Power      int           `json:"power"`
	Confidence Confidence    `json:"confidence"`
	Source     ProfileSource `json:"source"`
}

// Power derivation weights. Body dominates perceived intensity, tannin and
// oak follow; acidity and sweetness contribute least. Tunable, but changing
// them changes every persisted power score, so bump the readiness algorithm
// version alongside.
const (
	powerWeightBody      = 0.30
	powerWeightTannin    = 0.25
	powerWeightOak       = 0.20
	powerWeightAcidity   = 0.15
	powerWeightSweetness = 0.10
)

// DerivePower recomputes Power from the five base axes: a weighted 0-5
// average scaled onto 0-10 and rounded to the nearest integer.
func (p *StructuralProfile) DerivePower() {
	avg := powerWeightBody*float64(p.Body) +
		powerWeightTannin*float64(p.Tannin) +
		powerWeightOak*float64(p.Oak) +
		powerWeightAcidity*float64(p.Acidity) +
		powerWeightSweetness*float64(p.Sweetness)
	p.Power = clampInt(int(math.Round(avg*2)), 0, 10)
}

// NewStructuralProfile builds a profile with Power derived and axes clamped
// to their 0-5 range.
func NewStructuralProfile(body, tannin, acidity, oak, sweetness int, conf Confidence, src ProfileSource) StructuralProfile {
	p := StructuralProfile{
		Body:       clampInt(body, 0, 5),
		Tannin:     clampInt(tannin, 0, 5),
		Acidity:    clampInt(acidity, 0, 5),
		Oak:        clampInt(oak, 0, 5),
		Sweetness:  clampInt(sweetness, 0, 5),
		Confidence: conf,
		Source:     src,
	}
	p.DerivePower()
	return p
}

// Bottle is an in-stock inventory entry considered for a lineup. Rating is
// the cellar owner's 0-100 rating.
type Bottle struct {
	ID        int64              `json:"id"`
	Wine      WineRecord         `json:"wine"`
	Rating    float64            `json:"rating"`
	InStock   bool               `json:"in_stock"`
	Profile   *StructuralProfile `json:"profile,omitempty"`
	Readiness *ReadinessResult   `json:"readiness,omitempty"`
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
