package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePower(t *testing.T) {
	tests := []struct {
		name                              string
		body, tannin, acidity, oak, sweet int
		want                              int
	}{
		{"all zero", 0, 0, 0, 0, 0, 0},
		{"all max", 5, 5, 5, 5, 5, 10},
		{"mid everything", 2, 2, 2, 2, 2, 4},
		{"big structured red", 5, 5, 5, 4, 0, 9},
		{"light white", 2, 0, 4, 0, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := StructuralProfile{Body: tt.body, Tannin: tt.tannin, Acidity: tt.acidity, Oak: tt.oak, Sweetness: tt.sweet}
			p.DerivePower()
			assert.Equal(t, tt.want, p.Power)
		})
	}
}

func TestNewStructuralProfile_ClampsAxes(t *testing.T) {
	p := NewStructuralProfile(9, -3, 5, 6, -1, ConfidenceMed, ProfileSourceAI)

	assert.Equal(t, 5, p.Body)
	assert.Equal(t, 0, p.Tannin)
	assert.Equal(t, 5, p.Acidity)
	assert.Equal(t, 5, p.Oak)
	assert.Equal(t, 0, p.Sweetness)
	assert.GreaterOrEqual(t, p.Power, 0)
	assert.LessOrEqual(t, p.Power, 10)
}

func TestValidBackfillMode(t *testing.T) {
	assert.True(t, ValidBackfillMode("missing_only"))
	assert.True(t, ValidBackfillMode("stale_or_missing"))
	assert.True(t, ValidBackfillMode("force_all"))
	assert.False(t, ValidBackfillMode(""))
	assert.False(t, ValidBackfillMode("everything"))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobRunning.Terminal())
	assert.False(t, JobIdle.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.True(t, JobFailed.Terminal())
}
