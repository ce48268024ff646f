// Package pairing rates wine-dish compatibility and builds tasting lineups.
package pairing

import (
	"math"
	"sort"
	"strings"

	"github.com/cellardesk/cellar-cli/internal/model"
)

// baseScore is the neutral pairing score before any rule contributes.
const baseScore = 50

// contribution is one rule's signed effect on the total.
type contribution struct {
	delta float64
	note  string
}

// rule inspects the wine and dish and returns a signed delta plus a short
// note. A rule that does not apply returns a zero contribution.
type rule func(p model.StructuralProfile, f model.FoodProfile) contribution

// rules run in fixed order so scoring is fully deterministic.
var rules = []rule{
	richnessRule,
	acidMatchRule,
	spiceRule,
	smokeRule,
}

// Scorer rates how well a wine's structure suits a dish. Pure and
// stateless: identical inputs always produce identical output.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns a 0-100 compatibility score and an explanation built from
// the strongest contributing rules. Unset food fields are neutral and never
// penalize.
func (s *Scorer) Score(p model.StructuralProfile, f model.FoodProfile) (int, string) {
	var contribs []contribution
	total := float64(baseScore)
	for _, r := range rules {
		c := r(p, f)
		if c.delta == 0 {
			continue
		}
		total += c.delta
		contribs = append(contribs, c)
	}

	score := int(math.Round(math.Min(100, math.Max(0, total))))

	if len(contribs) == 0 {
		return score, "neutral pairing: no strong interactions between wine and dish"
	}

	// Highest-magnitude contributions first; stable so equal magnitudes
	// keep rule order.
	sort.SliceStable(contribs, func(i, j int) bool {
		return math.Abs(contribs[i].delta) > math.Abs(contribs[j].delta)
	})
	if len(contribs) > 2 {
		contribs = contribs[:2]
	}
	notes := make([]string, len(contribs))
	for i, c := range contribs {
		notes[i] = c.note
	}
	return score, strings.Join(notes, "; ")
}

// richnessRule rewards tannin and acidity against fatty proteins and rich
// sauces. Both a rich sauce and a fatty protein firing doubles the effect.
func richnessRule(p model.StructuralProfile, f model.FoodProfile) contribution {
	firings := 0
	if f.Sauce == model.SauceRich || f.Sauce == model.SauceCream {
		firings++
	}
	switch f.Protein {
	case model.ProteinBeef, model.ProteinLamb, model.ProteinPork:
		firings++
	}
	if firings == 0 {
		return contribution{}
	}

	structure := p.Tannin + p.Acidity // 0..10
	delta := float64(structure-5) * 3 * float64(firings)
	note := "firm tannin and fresh acidity cut through the rich, fatty dish"
	if delta < 0 {
		note = "soft tannin and low acidity risk being overwhelmed by the rich dish"
	}
	return contribution{delta: delta, note: note}
}

// acidMatchRule rewards acidity against tomato-based sauces.
func acidMatchRule(p model.StructuralProfile, f model.FoodProfile) contribution {
	if f.Sauce != model.SauceTomato {
		return contribution{}
	}
	delta := float64(p.Acidity-2) * 5
	note := "bright acidity matches the tomato sauce"
	if delta < 0 {
		note = "flat acidity clashes with the tomato sauce"
	}
	return contribution{delta: delta, note: note}
}

// spiceRule penalizes tannin and power against hot dishes; sweetness tames
// heat. Power stands in for alcohol, which the profile does not carry.
func spiceRule(p model.StructuralProfile, f model.FoodProfile) contribution {
	if f.SpiceLevel != model.LevelHigh {
		return contribution{}
	}
	delta := -float64(p.Tannin-2)*4 - float64(p.Power-5)*2 + float64(p.Sweetness)*3
	note := "high tannin and power amplify the heat of the dish"
	if delta >= 0 {
		note = "gentle structure and a touch of sweetness handle the heat well"
	}
	return contribution{delta: delta, note: note}
}

// smokeRule rewards oak and body against smoke and char.
func smokeRule(p model.StructuralProfile, f model.FoodProfile) contribution {
	var mult float64
	switch f.SmokeLevel {
	case model.LevelHigh:
		mult = 3
	case model.LevelMed:
		mult = 2
	default:
		return contribution{}
	}
	delta := float64(p.Oak+p.Body-4) * mult
	note := "oak and body stand up to the smoke and char"
	if delta < 0 {
		note = "a light, unoaked wine will be lost against the smoke"
	}
	return contribution{delta: delta, note: note}
}
