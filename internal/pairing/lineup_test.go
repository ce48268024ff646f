package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellardesk/cellar-cli/internal/config"
	"github.com/cellardesk/cellar-cli/internal/model"
)

func testPairingConfig() config.PairingConfig {
	return config.PairingConfig{MinRating: 70, MaxPowerJump: 4}
}

func bottle(id int64, rating float64, p model.StructuralProfile) model.Bottle {
	return model.Bottle{
		ID:      id,
		Wine:    model.WineRecord{ID: id, VintageYear: 2018, Color: model.ColorRed},
		Rating:  rating,
		InStock: true,
		Profile: &p,
	}
}

func TestTargetCount(t *testing.T) {
	tests := []struct {
		seats, want int
	}{
		{0, 2},
		{1, 2},
		{4, 2},
		{5, 3},
		{8, 4},
		{11, 6},
		{40, 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, targetCount(tt.seats), "seats=%d", tt.seats)
	}
}

func TestOrder_FiltersIneligibleBottles(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())
	p := profile(3, 3, 3, 2, 0)

	outOfStock := bottle(1, 90, p)
	outOfStock.InStock = false
	lowRated := bottle(2, 50, p)
	noProfile := bottle(3, 90, p)
	noProfile.Profile = nil
	good := bottle(4, 90, p)

	lineup := o.Order([]model.Bottle{outOfStock, lowRated, noProfile, good}, model.FoodProfile{}, 4)
	require.Len(t, lineup, 1)
	assert.Equal(t, int64(4), lineup[0].Bottle.ID)
}

func TestOrder_PowerNonDecreasing(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())

	pool := []model.Bottle{
		bottle(1, 90, profile(5, 5, 4, 4, 0)),
		bottle(2, 88, profile(2, 1, 4, 0, 0)),
		bottle(3, 85, profile(4, 3, 3, 3, 0)),
		bottle(4, 92, profile(3, 2, 4, 1, 0)),
		bottle(5, 80, profile(5, 4, 3, 2, 0)),
		bottle(6, 83, profile(2, 2, 3, 1, 1)),
	}
	lineup := o.Order(pool, model.FoodProfile{Protein: model.ProteinBeef}, 12)

	require.NotEmpty(t, lineup)
	for i := 1; i < len(lineup); i++ {
		assert.GreaterOrEqual(t,
			lineup[i].Bottle.Profile.Power,
			lineup[i-1].Bottle.Profile.Power,
			"lineup must run light to bold",
		)
	}
}

func TestOrder_WidePowerGapStaysAscending(t *testing.T) {
	// Two bottles whose powers differ by more than MaxPowerJump: the gap
	// cannot be smoothed, but the lineup must still run light to bold.
	o := NewOrderer(NewScorer(), testPairingConfig())

	pool := []model.Bottle{
		bottle(1, 90, profile(5, 5, 5, 4, 0)),
		bottle(2, 90, profile(0, 0, 0, 0, 0)),
	}
	lineup := o.Order(pool, model.FoodProfile{}, 4)

	require.Len(t, lineup, 2)
	assert.LessOrEqual(t,
		lineup[0].Bottle.Profile.Power,
		lineup[1].Bottle.Profile.Power,
		"lineup must run light to bold even across an unsmoothable gap",
	)
}

func TestOrder_ClampsLineupSize(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())

	var pool []model.Bottle
	for i := int64(1); i <= 10; i++ {
		pool = append(pool, bottle(i, 85, profile(int(i%5), int(i%4), 3, 2, 0)))
	}

	assert.Len(t, o.Order(pool, model.FoodProfile{}, 40), 6)
	assert.Len(t, o.Order(pool, model.FoodProfile{}, 1), 2)
}

func TestOrder_DeduplicatesWines(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())

	a := bottle(1, 90, profile(3, 3, 3, 2, 0))
	b := bottle(2, 95, profile(3, 3, 3, 2, 0))
	b.Wine.ID = 1 // same wine, different bottle
	c := bottle(3, 80, profile(4, 4, 3, 3, 0))

	lineup := o.Order([]model.Bottle{a, b, c}, model.FoodProfile{}, 8)

	seen := map[int64]int{}
	for _, r := range lineup {
		seen[r.Bottle.Wine.ID]++
	}
	for wineID, n := range seen {
		assert.Equal(t, 1, n, "wine %d appears %d times", wineID, n)
	}
}

func TestOrder_EmptyPool(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())
	assert.Nil(t, o.Order(nil, model.FoodProfile{}, 4))
	assert.Nil(t, o.Order([]model.Bottle{}, model.FoodProfile{}, 4))
}

func TestOrder_PrefersBetterPairings(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())
	f := model.FoodProfile{Protein: model.ProteinBeef, Sauce: model.SauceRich}

	structured := bottle(1, 85, profile(5, 5, 4, 3, 0))
	soft := bottle(2, 85, profile(2, 1, 1, 0, 0))
	medium := bottle(3, 85, profile(4, 3, 3, 2, 0))

	lineup := o.Order([]model.Bottle{structured, soft, medium}, f, 4)
	require.Len(t, lineup, 2)

	ids := []int64{lineup[0].Bottle.ID, lineup[1].Bottle.ID}
	assert.NotContains(t, ids, int64(2), "the weakest pairing should be cut")
}

func TestOrder_Deterministic(t *testing.T) {
	o := NewOrderer(NewScorer(), testPairingConfig())
	pool := []model.Bottle{
		bottle(1, 90, profile(5, 5, 4, 4, 0)),
		bottle(2, 88, profile(2, 1, 4, 0, 0)),
		bottle(3, 85, profile(4, 3, 3, 3, 0)),
	}
	f := model.FoodProfile{Sauce: model.SauceTomato}

	first := o.Order(pool, f, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, o.Order(pool, f, 6))
	}
}
