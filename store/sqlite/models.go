package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/courier/item"
)

// timeLayout is the canonical text representation for timestamps.
// RFC 3339 with nanoseconds sorts lexicographically, so string
// comparisons in SQL behave like time comparisons.
const timeLayout = time.RFC3339Nano

// fmtTime formats a timestamp for a TEXT column.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// fmtTimePtr formats an optional timestamp, mapping nil to SQL NULL.
func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

// parseTime parses a TEXT column timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("courier/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

// parseTimePtr parses an optional TEXT column timestamp.
func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalPayload serializes an item payload for a TEXT column.
func marshalPayload(p item.Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: marshal payload: %w", err)
	}
	return data, nil
}

// unmarshalPayload deserializes a TEXT column into an item payload.
func unmarshalPayload(data []byte, p *item.Payload) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("courier/sqlite: unmarshal payload: %w", err)
	}
	return nil
}

// marshalMetadata serializes item metadata. Nil maps map to SQL NULL.
func marshalMetadata(m map[string]string) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("courier/sqlite: marshal metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalMetadata deserializes a metadata column.
func unmarshalMetadata(ns sql.NullString, m *map[string]string) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(ns.String), m); err != nil {
		return fmt.Errorf("courier/sqlite: unmarshal metadata: %w", err)
	}
	return nil
}
