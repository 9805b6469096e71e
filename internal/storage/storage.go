// Package storage persists gallery media on the local filesystem or in MinIO.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore writes, removes and addresses media objects by key.
// Keys are slash-separated, for example "12/3f1c.jpg".
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
	Backend() string
}

// cleanKey normalizes key and rejects traversal outside the root.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// DeleteAll removes every key and returns the first error encountered.
// It keeps going after failures so a rollback removes as much as it can.
func DeleteAll(ctx context.Context, store ObjectStore, keys []string) error {
	var first error
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
