package keyvalue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Store persists one hash of fields per key.
type Store interface {
	// Get returns the hash stored under key. The bool is false when the key
	// does not exist.
	Get(ctx context.Context, key string) (map[string]any, bool, error)

	// Put replaces the hash stored under key.
	Put(ctx context.Context, key string, fields map[string]any) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	Close() error
}

func encodeHash(fields map[string]any) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding hash: %w", err)
	}
	return data, nil
}

// decodeHash keeps numbers as json.Number so integers survive a round trip.
func decodeHash(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	return fields, nil
}

func objectKey(prefix, key string) string {
	return prefix + key + ".json"
}
