// internal/domain/problem/errors.go

package problem

import (
	"fmt"
	"math"
)

// ValidationError reports a malformed field on one input item. It aborts the
// whole batch because scores are only comparable over consistent inputs.
type ValidationError struct {
	Index  int
	ItemID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("item %q (index %d): field %s: %s", e.ItemID, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("item at index %d: field %s: %s", e.Index, e.Field, e.Reason)
}

// ConfigurationError reports an invalid configuration value. It is returned
// when a configuration is constructed, never at call time.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks the numeric and flag fields of an item
func (i EnrichedItem) Validate(index int) error {
	invalid := func(field, reason string) error {
		return &ValidationError{Index: index, ItemID: i.ID, Field: field, Reason: reason}
	}

	if i.Score != nil && *i.Score < 0 {
		return invalid("score", "must be non-negative")
	}
	if i.NumComments != nil && *i.NumComments < 0 {
		return invalid("num_comments", "must be non-negative")
	}
	if i.Score != nil && i.NumComments != nil && *i.Score > math.MaxInt64-*i.NumComments {
		return invalid("num_comments", "score + num_comments overflows")
	}
	if i.Sentiment != nil {
		s := *i.Sentiment
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return invalid("sentiment", "must be a finite number")
		}
		if s < -1 || s > 1 {
			return invalid("sentiment", "must be within [-1, 1]")
		}
	}
	if i.IsQuestion != 0 && i.IsQuestion != 1 {
		return invalid("is_question", "must be 0 or 1")
	}
	if i.PainMarkers != 0 && i.PainMarkers != 1 {
		return invalid("pain_markers", "must be 0 or 1")
	}
	if i.CreatedUTC != nil {
		ts := *i.CreatedUTC
		if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
			return invalid("created_utc", "must be a non-negative epoch timestamp")
		}
	}

	return nil
}

// ValidateAll validates every item and returns the first failure
func ValidateAll(items []EnrichedItem) error {
	for idx := range items {
		if err := items[idx].Validate(idx); err != nil {
			return err
		}
	}
	return nil
}
