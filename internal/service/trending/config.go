package trending

import (
	"math"
	"time"

	"magnet/internal/domain/problem"
)

// Default trend parameters
const (
	DefaultBucket        = 6 * time.Hour
	DefaultShortWindow   = 24 * time.Hour
	DefaultLongWindow    = 72 * time.Hour
	DefaultTrendDelta    = 0.15
	DefaultMinSupport    = 3
	DefaultTailBuckets   = 10
	DefaultMaxConcurrent = 4
)

// Config is an immutable trend configuration. Build it with NewConfig.
type Config struct {
	bucket        time.Duration
	shortWindow   time.Duration
	longWindow    time.Duration
	trendDelta    float64
	minSupport    int
	tailBuckets   int
	maxConcurrent int
}

// Option overrides one trend parameter
type Option func(*Config)

// WithBucket sets the bucket width
func WithBucket(d time.Duration) Option {
	return func(c *Config) { c.bucket = d }
}

// WithShortWindow sets the short moving-average window
func WithShortWindow(d time.Duration) Option {
	return func(c *Config) { c.shortWindow = d }
}

// WithLongWindow sets the long moving-average window, which also bounds the
// bucketed history
func WithLongWindow(d time.Duration) Option {
	return func(c *Config) { c.longWindow = d }
}

// WithTrendDelta sets the relative band around the long average that counts as flat
func WithTrendDelta(v float64) Option {
	return func(c *Config) { c.trendDelta = v }
}

// WithMinSupport sets the minimum cluster size for classification
func WithMinSupport(n int) Option {
	return func(c *Config) { c.minSupport = n }
}

// WithTailBuckets sets how many recent buckets a report carries for display
func WithTailBuckets(n int) Option {
	return func(c *Config) { c.tailBuckets = n }
}

// WithMaxConcurrent bounds the clusters analyzed in parallel
func WithMaxConcurrent(n int) Option {
	return func(c *Config) { c.maxConcurrent = n }
}

// NewConfig applies opts over the defaults and validates the result
func NewConfig(opts ...Option) (Config, error) {
	cfg := Config{
		bucket:        DefaultBucket,
		shortWindow:   DefaultShortWindow,
		longWindow:    DefaultLongWindow,
		trendDelta:    DefaultTrendDelta,
		minSupport:    DefaultMinSupport,
		tailBuckets:   DefaultTailBuckets,
		maxConcurrent: DefaultMaxConcurrent,
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

// Bucket returns the bucket width
func (c Config) Bucket() time.Duration { return c.bucket }

// ShortWindow returns the span of the short moving average
func (c Config) ShortWindow() time.Duration { return c.shortWindow }

// LongWindow returns the span of the long moving average and of the series
func (c Config) LongWindow() time.Duration { return c.longWindow }

// TrendDelta returns the relative change between the averages that marks a
// cluster rising or falling
func (c Config) TrendDelta() float64 { return c.trendDelta }

// MinSupport returns the smallest cluster size that is classified
func (c Config) MinSupport() int { return c.minSupport }

// TailBuckets returns how many trailing buckets a report carries
func (c Config) TailBuckets() int { return c.tailBuckets }

// MaxConcurrent returns the number of clusters analyzed in parallel
func (c Config) MaxConcurrent() int { return c.maxConcurrent }

// windowBuckets converts a window to a bucket count, rounded down, at least one
func (c Config) windowBuckets(window time.Duration) int {
	n := int(window / c.bucket)
	if n < 1 {
		return 1
	}
	return n
}

// spanBuckets is the number of buckets needed to cover the long window
func (c Config) spanBuckets() int {
	n := int(math.Ceil(float64(c.longWindow) / float64(c.bucket)))
	if n < 1 {
		return 1
	}
	return n
}

func (c Config) validate() error {
	durations := []struct {
		field string
		value time.Duration
	}{
		{"bucket_hours", c.bucket},
		{"window_short_hours", c.shortWindow},
		{"window_long_hours", c.longWindow},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return &problem.ConfigurationError{Field: d.field, Value: d.value.Hours(), Reason: "must be positive"}
		}
	}

	if math.IsNaN(c.trendDelta) || math.IsInf(c.trendDelta, 0) || c.trendDelta < 0 {
		return &problem.ConfigurationError{Field: "trend_delta", Value: c.trendDelta, Reason: "must be a non-negative number"}
	}
	if c.minSupport < 0 {
		return &problem.ConfigurationError{Field: "min_support", Value: c.minSupport, Reason: "must be non-negative"}
	}
	if c.tailBuckets < 0 {
		return &problem.ConfigurationError{Field: "tail_buckets", Value: c.tailBuckets, Reason: "must be non-negative"}
	}
	if c.maxConcurrent < 1 {
		return &problem.ConfigurationError{Field: "max_concurrent_clusters", Value: c.maxConcurrent, Reason: "must be at least 1"}
	}

	return nil
}
