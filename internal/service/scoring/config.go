package scoring

import (
	"math"
	"time"

	"magnet/internal/domain/problem"
)

// Default scoring parameters
const (
	DefaultHalfLife    = 72 * time.Hour
	DefaultDensityNorm = 20.0
)

// DefaultWeights returns the stock weight vector
func DefaultWeights() problem.Weights {
	return problem.Weights{
		Engagement: 0.35,
		Negativity: 0.20,
		Question:   0.15,
		Pain:       0.15,
		Density:    0.10,
		Freshness:  0.05,
	}
}

// Config is an immutable scoring configuration. Build it with NewConfig.
type Config struct {
	weights     problem.Weights
	halfLife    time.Duration
	densityNorm float64
}

// Option overrides one scoring parameter
type Option func(*Config)

// WithWeights replaces the whole weight vector
func WithWeights(w problem.Weights) Option {
	return func(c *Config) { c.weights = w }
}

// WithEngagementWeight sets W_E
func WithEngagementWeight(v float64) Option {
	return func(c *Config) { c.weights.Engagement = v }
}

// WithNegativityWeight sets W_N
func WithNegativityWeight(v float64) Option {
	return func(c *Config) { c.weights.Negativity = v }
}

// WithQuestionWeight sets W_Q
func WithQuestionWeight(v float64) Option {
	return func(c *Config) { c.weights.Question = v }
}

// WithPainWeight sets W_P
func WithPainWeight(v float64) Option {
	return func(c *Config) { c.weights.Pain = v }
}

// WithDensityWeight sets W_D
func WithDensityWeight(v float64) Option {
	return func(c *Config) { c.weights.Density = v }
}

// WithFreshnessWeight sets W_T
func WithFreshnessWeight(v float64) Option {
	return func(c *Config) { c.weights.Freshness = v }
}

// WithHalfLife sets the freshness half-life
func WithHalfLife(d time.Duration) Option {
	return func(c *Config) { c.halfLife = d }
}

// WithDensityNorm sets the cluster size at which density saturates
func WithDensityNorm(v float64) Option {
	return func(c *Config) { c.densityNorm = v }
}

// NewConfig applies opts over the defaults and validates the result
func NewConfig(opts ...Option) (Config, error) {
	cfg := Config{
		weights:     DefaultWeights(),
		halfLife:    DefaultHalfLife,
		densityNorm: DefaultDensityNorm,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.validate()
}

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	cfg, _ := NewConfig()
	return cfg
}

// Weights returns the weight vector
func (c Config) Weights() problem.Weights { return c.weights }

// HalfLife returns the freshness half-life
func (c Config) HalfLife() time.Duration { return c.halfLife }

// DensityNorm returns the density normalization constant
func (c Config) DensityNorm() float64 { return c.densityNorm }

func (c Config) validate() error {
	named := []struct {
		field string
		value float64
	}{
		{"W_E", c.weights.Engagement},
		{"W_N", c.weights.Negativity},
		{"W_Q", c.weights.Question},
		{"W_P", c.weights.Pain},
		{"W_D", c.weights.Density},
		{"W_T", c.weights.Freshness},
	}
	for _, w := range named {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return &problem.ConfigurationError{Field: w.field, Value: w.value, Reason: "weight must be finite"}
		}
		if w.value < 0 {
			return &problem.ConfigurationError{Field: w.field, Value: w.value, Reason: "weight must be non-negative"}
		}
	}

	if c.halfLife <= 0 {
		return &problem.ConfigurationError{Field: "half_life_hours", Value: c.halfLife.Hours(), Reason: "must be positive"}
	}
	if math.IsNaN(c.densityNorm) || math.IsInf(c.densityNorm, 0) || c.densityNorm <= 0 {
		return &problem.ConfigurationError{Field: "density_norm", Value: c.densityNorm, Reason: "must be a positive number"}
	}

	return nil
}
