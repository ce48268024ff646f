package pairing

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cellardesk/cellar-cli/internal/config"
	"github.com/cellardesk/cellar-cli/internal/model"
)

// Lineup size bounds: even a large table gets at most six bottles, and a
// tasting needs at least two.
const (
	minLineup = 2
	maxLineup = 6
)

// Ranked is one lineup slot: a bottle plus its pairing verdict.
type Ranked struct {
	Bottle       model.Bottle `json:"bottle"`
	PairingScore int          `json:"pairing_score"`
	Explanation  string       `json:"explanation"`
}

// Orderer selects and sequences bottles for a dinner, light to bold.
type Orderer struct {
	scorer *Scorer
	cfg    config.PairingConfig
}

// NewOrderer creates an Orderer.
func NewOrderer(scorer *Scorer, cfg config.PairingConfig) *Orderer {
	return &Orderer{scorer: scorer, cfg: cfg}
}

// targetCount derives the lineup size from the seat count: roughly one
// bottle per two guests, clamped to [2,6].
func targetCount(seats int) int {
	n := (seats + 1) / 2
	if n < minLineup {
		n = minLineup
	}
	if n > maxLineup {
		n = maxLineup
	}
	return n
}

// Order picks the best-pairing bottles for the dish and orders them by
// ascending power. Candidates that are out of stock, below the rating
// threshold, or missing a structural profile are dropped. Duplicate wines
// are collapsed to their best bottle. The returned sequence is
// non-decreasing in power except where the candidate pool makes a smooth
// ramp impossible, in which case the closest achievable ordering is
// returned.
func (o *Orderer) Order(pool []model.Bottle, food model.FoodProfile, seats int) []Ranked {
	var ranked []Ranked
	for _, b := range pool {
		if !b.InStock || b.Rating < o.cfg.MinRating || b.Profile == nil {
			continue
		}
		score, expl := o.scorer.Score(*b.Profile, food)
		ranked = append(ranked, Ranked{Bottle: b, PairingScore: score, Explanation: expl})
	}
	if len(ranked) == 0 {
		return nil
	}

	// Best pairing first, rating as tie-break.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PairingScore != ranked[j].PairingScore {
			return ranked[i].PairingScore > ranked[j].PairingScore
		}
		return ranked[i].Bottle.Rating > ranked[j].Bottle.Rating
	})

	// One bottle per wine identity.
	n := targetCount(seats)
	seen := make(map[int64]bool, n)
	var selected []Ranked
	for _, r := range ranked {
		if seen[r.Bottle.Wine.ID] {
			continue
		}
		seen[r.Bottle.Wine.ID] = true
		selected = append(selected, r)
		if len(selected) == n {
			break
		}
	}

	// Tasting order: light to bold.
	sort.SliceStable(selected, func(i, j int) bool {
		pi, pj := selected[i].Bottle.Profile.Power, selected[j].Bottle.Profile.Power
		if pi != pj {
			return pi < pj
		}
		return selected[i].Bottle.Rating > selected[j].Bottle.Rating
	})

	o.smoothTransitions(selected)
	return selected
}

// smoothTransitions tries local swaps on any adjacent pair whose power jump
// exceeds the configured threshold. A swap is kept only when it strictly
// reduces the violation count; a descending adjacent pair counts as a
// violation itself, so smoothing can never trade a wide gap for a broken
// light-to-bold ramp. If violations remain the lineup is kept as the best
// achievable ramp.
func (o *Orderer) smoothTransitions(lineup []Ranked) {
	if o.cfg.MaxPowerJump <= 0 {
		return
	}
	before := o.countViolations(lineup)
	if before == 0 {
		return
	}
	for i := 0; i < len(lineup)-1; i++ {
		if power(lineup[i+1])-power(lineup[i]) <= o.cfg.MaxPowerJump {
			continue
		}
		lineup[i], lineup[i+1] = lineup[i+1], lineup[i]
		if o.countViolations(lineup) >= before {
			lineup[i], lineup[i+1] = lineup[i+1], lineup[i]
		}
	}
	if after := o.countViolations(lineup); after > 0 {
		zap.L().Debug("lineup keeps jarring power transitions",
			zap.Int("violations", after),
			zap.Int("max_power_jump", o.cfg.MaxPowerJump),
		)
	}
}

// countViolations counts adjacent pairs that break the ramp: any descending
// step, or an ascending step wider than MaxPowerJump.
func (o *Orderer) countViolations(lineup []Ranked) int {
	n := 0
	for i := 0; i < len(lineup)-1; i++ {
		delta := power(lineup[i+1]) - power(lineup[i])
		if delta < 0 || delta > o.cfg.MaxPowerJump {
			n++
		}
	}
	return n
}

func power(r Ranked) int {
	return r.Bottle.Profile.Power
}
