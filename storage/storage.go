// Package storage provides pluggable backend interfaces for storage operations.
package storage

import (
	"context"
	"path"
	"strings"
)

// Store is the pluggable backend interface for storage operations.
//
// Keys are strings; "/" separates hierarchy levels and List filters by
// prefix. Values are opaque bytes. All implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores data at key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data at key. A missing key returns an error wrapping
	// errors.ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexicographic order. An
	// empty prefix lists everything; no match yields an empty slice.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// KeyGenerator derives a storage key for a received message.
type KeyGenerator interface {
	// GenerateKey returns the key for a message received on port with the
	// given headers.
	GenerateKey(port string, headers map[string]string) string
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func(port string, headers map[string]string) string

// GenerateKey calls f.
func (f KeyGeneratorFunc) GenerateKey(port string, headers map[string]string) string {
	return f(port, headers)
}

// JoinKey joins key segments with "/", dropping empty segments and any
// leading or trailing slash.
func JoinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
