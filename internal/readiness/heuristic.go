package readiness

import (
	_ "embed"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/cellardesk/cellar-cli/internal/model"
)

//go:embed grapes.yaml
var grapesYAML []byte

// profileEntry is one row of the embedded heuristic table.
type profileEntry struct {
	Match     []string `yaml:"match,omitempty"`
	Body      int      `yaml:"body"`
	Tannin    int      `yaml:"tannin"`
	Acidity   int      `yaml:"acidity"`
	Oak       int      `yaml:"oak"`
	Sweetness int      `yaml:"sweetness"`
}

type heuristicTable struct {
	Grapes  []profileEntry          `yaml:"grapes"`
	Regions []profileEntry          `yaml:"regions"`
	Colors  map[string]profileEntry `yaml:"colors"`
}

// Estimator derives a coarse structural profile from grape, region and
// color lookups. New grapes and regions go into grapes.yaml; the calculator
// never needs to change for them.
type Estimator struct {
	table heuristicTable
}

// NewEstimator loads the embedded heuristic table. Estimation never fails:
// if the table cannot be parsed the estimator degrades to the neutral
// default for every input.
func NewEstimator() *Estimator {
	var t heuristicTable
	if err := yaml.Unmarshal(grapesYAML, &t); err != nil {
		zap.L().Error("readiness: parse embedded grape table", zap.Error(err))
		t = heuristicTable{}
	}
	return &Estimator{table: t}
}

// Estimate returns a heuristic profile for the given wine attributes.
// Precedence: grape match, then region substring match, then the per-color
// default, then a fully neutral profile. The result always carries
// source=heuristic and confidence=low.
func (e *Estimator) Estimate(grapes []string, region string, color model.Color) model.StructuralProfile {
	if entry, ok := e.matchGrape(grapes); ok {
		return entryProfile(entry)
	}
	if entry, ok := e.matchRegion(region); ok {
		return entryProfile(entry)
	}
	if entry, ok := e.table.Colors[string(color)]; ok {
		return entryProfile(entry)
	}
	// Neutral default: middling everything.
	return model.NewStructuralProfile(2, 2, 2, 2, 2, model.ConfidenceLow, model.ProfileSourceHeuristic)
}

func (e *Estimator) matchGrape(grapes []string) (profileEntry, bool) {
	for _, g := range grapes {
		name := normalizeName(g)
		if name == "" {
			continue
		}
		for _, entry := range e.table.Grapes {
			for _, m := range entry.Match {
				if strings.Contains(name, m) {
					return entry, true
				}
			}
		}
	}
	return profileEntry{}, false
}

func (e *Estimator) matchRegion(region string) (profileEntry, bool) {
	name := normalizeName(region)
	if name == "" {
		return profileEntry{}, false
	}
	for _, entry := range e.table.Regions {
		for _, m := range entry.Match {
			if strings.Contains(name, m) {
				return entry, true
			}
		}
	}
	return profileEntry{}, false
}

func entryProfile(e profileEntry) model.StructuralProfile {
	return model.NewStructuralProfile(e.Body, e.Tannin, e.Acidity, e.Oak, e.Sweetness,
		model.ConfidenceLow, model.ProfileSourceHeuristic)
}

// foldDiacritics strips combining marks so "Grüner Veltliner" matches
// "gruner veltliner".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName lowercases and accent-folds a grape or region name.
func normalizeName(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
