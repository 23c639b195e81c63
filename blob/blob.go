// Package blob stores binary artifacts (normalized text, quality reports,
// manifests) behind a narrow contract with a filesystem backend and an
// SQLite backend. Keys are slash-separated logical paths chosen by the
// caller; backends map them to their own layout.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Read when no blob exists under the key.
var ErrNotFound = errors.New("blob: not found")

// Store is the storage contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save writes data under key, overwriting any previous blob, and
	// returns a backend-specific locator (path or table reference).
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Read returns the blob stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the blob under key. Removing a missing key is not
	// an error.
	Remove(ctx context.Context, key string) error
}

// validateKey rejects keys that could escape a backend's namespace.
func validateKey(key string) error {
	if key == "" {
		return errors.New("blob: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("blob: absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("blob: invalid key %q", key)
		}
	}
	return nil
}
