package readiness

import (
	"fmt"
	"math"

	"github.com/cellardesk/cellar-cli/internal/config"
	"github.com/cellardesk/cellar-cli/internal/model"
)

// minPlausibleVintage is the oldest vintage the calculator will reason
// about. Anything older (or in the future) gets StatusUnknown rather than a
// made-up window.
const minPlausibleVintage = 1900

// agingBucket groups reds by aging potential. Thresholds are years from
// vintage.
type agingBucket struct {
	name      string
	holdYears int // below this the wine is too young
	peakStart int
	peakEnd   int
	maxAge    int // beyond this the wine is past peak
}

var (
	bucketLow    = agingBucket{name: "low", holdYears: 0, peakStart: 1, peakEnd: 4, maxAge: 7}
	bucketMedium = agingBucket{name: "medium", holdYears: 2, peakStart: 4, peakEnd: 9, maxAge: 13}
	bucketHigh   = agingBucket{name: "high", holdYears: 4, peakStart: 8, peakEnd: 18, maxAge: 25}
)

// ageBand holds the fixed drinking curve for non-red wine types, which age
// on type alone: rising to riseEnd, plateauing to plateauEnd, declining to
// maxAge.
type ageBand struct {
	riseEnd    int
	plateauEnd int
	maxAge     int
	baseScore  float64 // score at age 0
	peakScore  float64 // score across the plateau
	floorScore float64 // score at maxAge
}

var typeBands = map[model.Color]ageBand{
	model.ColorSparkling: {riseEnd: 3, plateauEnd: 7, maxAge: 12, baseScore: 80, peakScore: 85, floorScore: 60},
	model.ColorWhite:     {riseEnd: 2, plateauEnd: 5, maxAge: 10, baseScore: 75, peakScore: 85, floorScore: 55},
	model.ColorRose:      {riseEnd: 1, plateauEnd: 3, maxAge: 6, baseScore: 78, peakScore: 85, floorScore: 55},
}

// longAgingGrapes get a typicity reason when they drive a long-window
// verdict. Keys are normalized grape names.
var longAgingGrapes = map[string]bool{
	"nebbiolo":           true,
	"cabernet sauvignon": true,
	"syrah":              true,
	"tempranillo":        true,
	"sangiovese":         true,
	"mourvedre":          true,
	"aglianico":          true,
}

// Calculator computes drinking readiness. It is a pure function of its
// inputs plus the config it was built with; it holds no mutable state.
type Calculator struct {
	cfg config.ReadinessConfig
	est *Estimator
}

// New creates a Calculator. The estimator supplies heuristic profiles for
// reds that arrive without one.
func New(cfg config.ReadinessConfig, est *Estimator) *Calculator {
	return &Calculator{cfg: cfg, est: est}
}

// AlgorithmVersion returns the version stamped onto every result.
func (c *Calculator) AlgorithmVersion() int {
	return c.cfg.AlgorithmVersion
}

// Compute classifies the wine's readiness as of currentYear. A nil profile
// is legal: reds fall back to the heuristic estimator, other types ignore
// the profile entirely. Compute never fails; implausible vintages yield
// StatusUnknown.
func (c *Calculator) Compute(wine model.WineRecord, currentYear int, profile *model.StructuralProfile) model.ReadinessResult {
	if wine.VintageYear < minPlausibleVintage || wine.VintageYear > currentYear {
		return model.ReadinessResult{
			Score:            0,
			Status:           model.StatusUnknown,
			DrinkWindowStart: currentYear,
			DrinkWindowEnd:   currentYear,
			Confidence:       model.ConfidenceLow,
			Reasons:          []string{"vintage out of plausible range"},
			AlgorithmVersion: c.cfg.AlgorithmVersion,
		}
	}

	age := currentYear - wine.VintageYear

	if wine.Color != model.ColorRed {
		return c.computeByType(wine, age, currentYear)
	}
	return c.computeRed(wine, age, profile)
}

// computeByType handles sparkling, white and rose, which follow fixed
// type-specific age bands independent of structure.
func (c *Calculator) computeByType(wine model.WineRecord, age, currentYear int) model.ReadinessResult {
	band, ok := typeBands[wine.Color]
	if !ok {
		return model.ReadinessResult{
			Status:           model.StatusUnknown,
			DrinkWindowStart: currentYear,
			DrinkWindowEnd:   currentYear,
			Confidence:       model.ConfidenceLow,
			Reasons:          []string{fmt.Sprintf("unrecognized wine type %q", wine.Color)},
			AlgorithmVersion: c.cfg.AlgorithmVersion,
		}
	}

	var (
		score   float64
		status  model.ReadinessStatus
		reasons []string
	)
	switch {
	case age <= band.riseEnd:
		score = interpolate(band.baseScore, band.peakScore, age, 0, band.riseEnd)
		status = model.StatusReadyNow
		reasons = append(reasons,
			fmt.Sprintf("%s wines are best enjoyed young", wine.Color),
			fmt.Sprintf("age %dy is within the early drinking window", age))
	case age <= band.plateauEnd:
		score = band.peakScore
		status = model.StatusReadyNow
		reasons = append(reasons, fmt.Sprintf("age %dy sits on the %s plateau (%d-%dy)", age, wine.Color, band.riseEnd, band.plateauEnd))
	case age <= band.maxAge:
		score = interpolate(band.peakScore, band.floorScore, age, band.plateauEnd, band.maxAge)
		status = model.StatusInWindow
		reasons = append(reasons, fmt.Sprintf("age %dy is past the plateau but inside the %dy window", age, band.maxAge))
	default:
		score = band.floorScore - float64(age-band.maxAge)*5
		status = model.StatusPastPeak
		reasons = append(reasons, fmt.Sprintf("age %dy exceeds the typical %dy life of a %s", age, band.maxAge, wine.Color))
	}

	conf := model.ConfidenceMed
	if wine.Color == model.ColorSparkling {
		conf = model.ConfidenceHigh
	}

	return model.ReadinessResult{
		Score:            clampScore(score),
		Status:           status,
		DrinkWindowStart: wine.VintageYear,
		DrinkWindowEnd:   wine.VintageYear + band.maxAge,
		Confidence:       conf,
		Reasons:          reasons,
		AlgorithmVersion: c.cfg.AlgorithmVersion,
	}
}

// computeRed scores a red against its structure-derived aging bucket.
func (c *Calculator) computeRed(wine model.WineRecord, age int, profile *model.StructuralProfile) model.ReadinessResult {
	var reasons []string

	heuristic := false
	if profile == nil {
		p := c.est.Estimate(wine.Grapes, wine.Region, wine.Color)
		profile = &p
		heuristic = true
		reasons = append(reasons, "structural profile estimated from grape and region")
	}

	structure := c.structureScore(profile)
	bucket := c.bucketFor(structure)
	reasons = append(reasons, fmt.Sprintf("structure score %.1f indicates %s aging potential", structure, bucket.name))

	for _, g := range wine.Grapes {
		if longAgingGrapes[normalizeName(g)] && bucket.name != "low" {
			reasons = append(reasons, fmt.Sprintf("%s is typically built for long aging", g))
			break
		}
	}

	var (
		score  float64
		status model.ReadinessStatus
	)
	switch {
	case age < bucket.holdYears:
		score = interpolate(40, 70, age, 0, bucket.holdYears)
		status = model.StatusTooYoung
		reasons = append(reasons, fmt.Sprintf("age %dy is below the %dy hold period", age, bucket.holdYears))
	case age < bucket.peakStart:
		score = interpolate(70, 90, age, bucket.holdYears, bucket.peakStart)
		status = model.StatusApproaching
		reasons = append(reasons, fmt.Sprintf("age %dy is approaching the peak window starting at %dy", age, bucket.peakStart))
	case age <= bucket.peakEnd:
		score = 92
		status = model.StatusPeak
		reasons = append(reasons, fmt.Sprintf("age %dy is inside the peak window (%d-%dy)", age, bucket.peakStart, bucket.peakEnd))
	case age <= bucket.maxAge:
		score = interpolate(90, 62, age, bucket.peakEnd, bucket.maxAge)
		status = model.StatusInWindow
		reasons = append(reasons, fmt.Sprintf("age %dy is past peak but inside the %dy drinking window", age, bucket.maxAge))
	default:
		score = 60 - float64(age-bucket.maxAge)*4
		status = model.StatusPastPeak
		reasons = append(reasons, fmt.Sprintf("age %dy exceeds the %dy maximum for this structure", age, bucket.maxAge))
	}

	conf := profile.Confidence
	if heuristic || profile.Source == model.ProfileSourceHeuristic {
		conf = model.ConfidenceLow
	}

	return model.ReadinessResult{
		Score:            clampScore(score),
		Status:           status,
		DrinkWindowStart: wine.VintageYear + bucket.peakStart,
		DrinkWindowEnd:   wine.VintageYear + bucket.maxAge,
		Confidence:       conf,
		Reasons:          reasons,
		AlgorithmVersion: c.cfg.AlgorithmVersion,
	}
}

// structureScore is the weighted sum of the axes that predict aging
// potential. With default weights it ranges 0 to 6.25.
func (c *Calculator) structureScore(p *model.StructuralProfile) float64 {
	return c.cfg.TanninWeight*float64(p.Tannin) +
		c.cfg.AcidityWeight*float64(p.Acidity) +
		c.cfg.OakWeight*float64(p.Oak) +
		c.cfg.PowerWeight*float64(p.Power)
}

func (c *Calculator) bucketFor(structure float64) agingBucket {
	switch {
	case structure >= c.cfg.HighBucketCutoff:
		return bucketHigh
	case structure >= c.cfg.MediumBucketCutoff:
		return bucketMedium
	default:
		return bucketLow
	}
}

// interpolate maps v in [lo,hi] linearly onto [from,to]. A degenerate range
// returns from.
func interpolate(from, to float64, v, lo, hi int) float64 {
	if hi <= lo {
		return from
	}
	frac := float64(v-lo) / float64(hi-lo)
	return from + (to-from)*frac
}

func clampScore(s float64) int {
	return int(math.Round(math.Min(100, math.Max(0, s))))
}
