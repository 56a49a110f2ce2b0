// internal/domain/problem/decode.go

package problem

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeItems decodes raw JSON records into EnrichedItems and validates them.
// A non-numeric value in a numeric field yields a ValidationError naming the
// item and the field instead of a bare decoding error.
func DecodeItems(raw []json.RawMessage) ([]EnrichedItem, error) {
	items := make([]EnrichedItem, 0, len(raw))
	for idx, rec := range raw {
		var item EnrichedItem
		if err := json.Unmarshal(rec, &item); err != nil {
			return nil, decodeError(idx, rec, err)
		}
		if err := item.Validate(idx); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeError(idx int, rec json.RawMessage, err error) error {
	// Best effort: recover the identifier even when another field is broken
	var ident struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(rec, &ident)
	var id string
	_ = json.Unmarshal(ident.ID, &id)

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "(record)"
		}
		return &ValidationError{
			Index:  idx,
			ItemID: id,
			Field:  field,
			Reason: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
		}
	}

	return &ValidationError{
		Index:  idx,
		ItemID: id,
		Field:  "(record)",
		Reason: err.Error(),
	}
}
