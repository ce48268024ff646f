package pairing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellardesk/cellar-cli/internal/model"
)

func profile(body, tannin, acidity, oak, sweet int) model.StructuralProfile {
	return model.NewStructuralProfile(body, tannin, acidity, oak, sweet, model.ConfidenceHigh, model.ProfileSourceAI)
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer()
	p := profile(5, 4, 3, 3, 0)
	f := model.FoodProfile{Protein: model.ProteinBeef, Sauce: model.SauceRich, SmokeLevel: model.LevelMed}

	score, expl := s.Score(p, f)
	for i := 0; i < 10; i++ {
		gotScore, gotExpl := s.Score(p, f)
		assert.Equal(t, score, gotScore)
		assert.Equal(t, expl, gotExpl)
	}
}

func TestScore_NeutralDish(t *testing.T) {
	s := NewScorer()
	score, expl := s.Score(profile(3, 3, 3, 2, 0), model.FoodProfile{})

	assert.Equal(t, 50, score)
	assert.Equal(t, "neutral pairing: no strong interactions between wine and dish", expl)
}

func TestScore_StructuredRedAgainstRichBeef(t *testing.T) {
	s := NewScorer()
	p := profile(5, 5, 4, 3, 0)
	f := model.FoodProfile{Protein: model.ProteinBeef, Sauce: model.SauceRich}

	score, expl := s.Score(p, f)
	assert.Equal(t, 74, score)
	assert.Contains(t, expl, "cut through the rich, fatty dish")
}

func TestScore_SoftWineAgainstRichDish(t *testing.T) {
	s := NewScorer()
	p := profile(2, 1, 1, 0, 0)
	f := model.FoodProfile{Protein: model.ProteinLamb, Sauce: model.SauceCream}

	score, expl := s.Score(p, f)
	assert.Less(t, score, 50)
	assert.Contains(t, expl, "overwhelmed")
}

func TestScore_TomatoSauce(t *testing.T) {
	s := NewScorer()

	bright, _ := s.Score(profile(4, 4, 4, 2, 0), model.FoodProfile{Sauce: model.SauceTomato})
	flat, _ := s.Score(profile(4, 4, 1, 2, 0), model.FoodProfile{Sauce: model.SauceTomato})
	assert.Greater(t, bright, flat)
}

func TestScore_SpicyDish(t *testing.T) {
	s := NewScorer()
	hot := model.FoodProfile{SpiceLevel: model.LevelHigh}

	tannic, explTannic := s.Score(profile(5, 5, 3, 4, 0), hot)
	offDry, explOffDry := s.Score(profile(2, 0, 5, 0, 2), hot)

	assert.Less(t, tannic, 50)
	assert.Contains(t, explTannic, "amplify the heat")
	assert.Greater(t, offDry, 50)
	assert.Contains(t, explOffDry, "handle the heat")
}

func TestScore_SmokedDish(t *testing.T) {
	s := NewScorer()

	oaked, _ := s.Score(profile(5, 4, 3, 4, 0), model.FoodProfile{SmokeLevel: model.LevelHigh})
	light, expl := s.Score(profile(1, 1, 3, 0, 0), model.FoodProfile{SmokeLevel: model.LevelHigh})
	assert.Greater(t, oaked, light)
	assert.Contains(t, expl, "lost against the smoke")
}

func TestScore_ExplanationKeepsTopTwoNotes(t *testing.T) {
	s := NewScorer()
	p := profile(5, 5, 4, 4, 0)
	f := model.FoodProfile{
		Protein:    model.ProteinBeef,
		Sauce:      model.SauceTomato,
		SmokeLevel: model.LevelHigh,
	}

	_, expl := s.Score(p, f)
	assert.Equal(t, 2, len(strings.Split(expl, "; ")))
}

func TestScore_Bounded(t *testing.T) {
	s := NewScorer()
	profiles := []model.StructuralProfile{
		profile(0, 0, 0, 0, 0),
		profile(5, 5, 5, 5, 5),
		profile(5, 5, 5, 5, 0),
	}
	foods := []model.FoodProfile{
		{},
		{Protein: model.ProteinBeef, Sauce: model.SauceRich, SpiceLevel: model.LevelHigh, SmokeLevel: model.LevelHigh},
		{Sauce: model.SauceTomato},
	}
	for _, p := range profiles {
		for _, f := range foods {
			score, _ := s.Score(p, f)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}
