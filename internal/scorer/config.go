// Package scorer implements buyer/deal fit scoring for buyer-universe trackers.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/buyer-universe/internal/config"
)

// DefaultFitConfig returns a config.FitConfig with sensible defaults.
// Weights sum to 100.
func DefaultFitConfig() config.FitConfig {
	return config.FitConfig{
		// Weights (sum = 100).
		SizeWeight:        40,
		ServiceWeight:     30,
		GeographyWeight:   20,
		BuyerTypeWeight:   5,
		DataQualityWeight: 5,

		// Size.
		SizeFloorHigh:     0,
		SizeFloorMedium:   0.25,
		SizeFloorLow:      0.5,
		SizeOutOfRangeMul: 0.8,

		ServiceRequiredShare: 0.6,

		// Geography.
		GeoMissStrict:   0,
		GeoMissModerate: 0.3,
		GeoMissRelaxed:  0.8,
		GeoPartialBase:  0.6,

		CompletenessHigh:   0.75,
		CompletenessMedium: 0.4,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.FitConfig) float64 {
	return c.SizeWeight + c.ServiceWeight + c.GeographyWeight +
		c.BuyerTypeWeight + c.DataQualityWeight
}

// ValidateConfig checks that a FitConfig is internally consistent.
func ValidateConfig(c config.FitConfig) error {
	var errs []string

	weights := map[string]float64{
		"size_weight":         c.SizeWeight,
		"service_weight":      c.ServiceWeight,
		"geography_weight":    c.GeographyWeight,
		"buyer_type_weight":   c.BuyerTypeWeight,
		"data_quality_weight": c.DataQualityWeight,
	}
	for _, name := range sortedKeys(weights) {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := WeightSum(c)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	// Allow tolerance for floating-point.
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	// Every ratio lives in [0,1].
	ratios := map[string]float64{
		"size_floor_high":        c.SizeFloorHigh,
		"size_floor_medium":      c.SizeFloorMedium,
		"size_floor_low":         c.SizeFloorLow,
		"size_out_of_range_mul":  c.SizeOutOfRangeMul,
		"service_required_share": c.ServiceRequiredShare,
		"geo_miss_strict":        c.GeoMissStrict,
		"geo_miss_moderate":      c.GeoMissModerate,
		"geo_miss_relaxed":       c.GeoMissRelaxed,
		"geo_partial_base":       c.GeoPartialBase,
		"completeness_high":      c.CompletenessHigh,
		"completeness_medium":    c.CompletenessMedium,
	}
	for _, name := range sortedKeys(ratios) {
		if v := ratios[name]; v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}

	if c.SizeFloorHigh > c.SizeFloorMedium || c.SizeFloorMedium > c.SizeFloorLow {
		errs = append(errs, "size floors must satisfy high <= medium <= low")
	}
	if c.GeoMissStrict > c.GeoMissModerate || c.GeoMissModerate > c.GeoMissRelaxed {
		errs = append(errs, "geo miss scores must satisfy strict <= moderate <= relaxed")
	}
	if c.CompletenessMedium > c.CompletenessHigh {
		errs = append(errs, "completeness_medium must be <= completeness_high")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfig reads a standalone fit rules file. The YAML has a top-level
// "scorer" key; omitted keys keep their defaults.
func LoadConfig(path string) (config.FitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.FitConfig{}, eris.Wrapf(err, "scorer: read config %s", path)
	}

	wrapper := struct {
		Scorer config.FitConfig `yaml:"scorer"`
	}{Scorer: DefaultFitConfig()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return config.FitConfig{}, eris.Wrap(err, "scorer: parse config")
	}
	if err := ValidateConfig(wrapper.Scorer); err != nil {
		return config.FitConfig{}, err
	}
	return wrapper.Scorer, nil
}

// ConfigHash returns a SHA-256 hash of the scoring config for reproducibility.
func ConfigHash(cfg any) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
