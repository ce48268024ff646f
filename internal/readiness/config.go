// Package readiness classifies a wine's drinking readiness from its vintage
// age and structural profile.
package readiness

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cellardesk/cellar-cli/internal/config"
)

// DefaultConfig returns a config.ReadinessConfig with the tuned defaults.
//
// The structure weights have no physical derivation; they encode the house
// view that tannin is the strongest predictor of aging potential, acidity
// and overall power follow, and oak matters least. They are deliberately
// explicit and tunable. Changing any weight changes persisted scores, so
// bump AlgorithmVersion with them.
func DefaultConfig() config.ReadinessConfig {
	return config.ReadinessConfig{
		AlgorithmVersion: 3,

		TanninWeight:  0.35,
		AcidityWeight: 0.25,
		OakWeight:     0.15,
		PowerWeight:   0.25,

		MediumBucketCutoff: 2.5,
		HighBucketCutoff:   4.25,
	}
}

// ValidateConfig checks that a ReadinessConfig is internally consistent.
func ValidateConfig(c config.ReadinessConfig) error {
	var errs []string

	if c.AlgorithmVersion <= 0 {
		errs = append(errs, "algorithm_version must be > 0")
	}

	weights := map[string]float64{
		"tannin_weight":  c.TanninWeight,
		"acidity_weight": c.AcidityWeight,
		"oak_weight":     c.OakWeight,
		"power_weight":   c.PowerWeight,
	}
	var sum float64
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
		sum += w
	}
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if c.MediumBucketCutoff <= 0 {
		errs = append(errs, "medium_bucket_cutoff must be > 0")
	}
	if c.HighBucketCutoff <= c.MediumBucketCutoff {
		errs = append(errs, "high_bucket_cutoff must be > medium_bucket_cutoff")
	}

	if len(errs) > 0 {
		return eris.Errorf("readiness: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
