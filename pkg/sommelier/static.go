package sommelier

import (
	"context"

	"github.com/cellardesk/cellar-cli/internal/model"
)

// StaticSource returns a fixed profile for every wine. It stands in for the
// Anthropic source in tests and offline runs.
type StaticSource struct {
	Profile model.StructuralProfile
}

// NewStaticSource builds a StaticSource around one profile.
func NewStaticSource(p model.StructuralProfile) *StaticSource {
	return &StaticSource{Profile: p}
}

func (s *StaticSource) GetProfile(context.Context, model.WineRecord) (*model.StructuralProfile, error) {
	p := s.Profile
	return &p, nil
}
