package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/courier/item"
)

// marshalPayload serializes an item payload for a jsonb column.
func marshalPayload(p item.Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: marshal payload: %w", err)
	}
	return data, nil
}

// unmarshalPayload deserializes a jsonb column into an item payload.
func unmarshalPayload(data []byte, p *item.Payload) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("courier/postgres: unmarshal payload: %w", err)
	}
	return nil
}

// marshalMetadata serializes item metadata for a jsonb column. Nil maps
// are stored as SQL NULL.
func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: marshal metadata: %w", err)
	}
	return data, nil
}

// unmarshalMetadata deserializes a jsonb column into item metadata.
func unmarshalMetadata(data []byte, m *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("courier/postgres: unmarshal metadata: %w", err)
	}
	return nil
}
