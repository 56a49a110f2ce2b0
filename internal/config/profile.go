package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// profile is the YAML overlay for scoring and trend parameters. Only the keys
// present in the file override the environment.
type profile struct {
	Scoring struct {
		WeightEngagement *float64 `yaml:"W_E"`
		WeightNegativity *float64 `yaml:"W_N"`
		WeightQuestion   *float64 `yaml:"W_Q"`
		WeightPain       *float64 `yaml:"W_P"`
		WeightDensity    *float64 `yaml:"W_D"`
		WeightFreshness  *float64 `yaml:"W_T"`
		HalfLifeHours    *float64 `yaml:"half_life_hours"`
		DensityNorm      *float64 `yaml:"density_norm"`
	} `yaml:"scoring"`
	Trend struct {
		BucketHours      *int     `yaml:"bucket_hours"`
		WindowShortHours *int     `yaml:"window_short_hours"`
		WindowLongHours  *int     `yaml:"window_long_hours"`
		TrendDelta       *float64 `yaml:"trend_delta"`
		MinSupport       *int     `yaml:"min_support"`
		TailBuckets      *int     `yaml:"tail_buckets"`
	} `yaml:"trend"`
}

func applyProfile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scoring profile: %w", err)
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse scoring profile %s: %w", path, err)
	}

	setFloat(&cfg.Scoring.WeightEngagement, p.Scoring.WeightEngagement)
	setFloat(&cfg.Scoring.WeightNegativity, p.Scoring.WeightNegativity)
	setFloat(&cfg.Scoring.WeightQuestion, p.Scoring.WeightQuestion)
	setFloat(&cfg.Scoring.WeightPain, p.Scoring.WeightPain)
	setFloat(&cfg.Scoring.WeightDensity, p.Scoring.WeightDensity)
	setFloat(&cfg.Scoring.WeightFreshness, p.Scoring.WeightFreshness)
	setFloat(&cfg.Scoring.HalfLifeHours, p.Scoring.HalfLifeHours)
	setFloat(&cfg.Scoring.DensityNorm, p.Scoring.DensityNorm)

	setInt(&cfg.Trend.BucketHours, p.Trend.BucketHours)
	setInt(&cfg.Trend.WindowShortHours, p.Trend.WindowShortHours)
	setInt(&cfg.Trend.WindowLongHours, p.Trend.WindowLongHours)
	setFloat(&cfg.Trend.TrendDelta, p.Trend.TrendDelta)
	setInt(&cfg.Trend.MinSupport, p.Trend.MinSupport)
	setInt(&cfg.Trend.TailBuckets, p.Trend.TailBuckets)

	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
