// Package settings defines the generic key/value settings store consumed by
// the reservation limits config. Persistence lives in
// infrastructure/storage/postgres/settings_repo.
package settings

import (
	"context"
)

// Store is a generic persisted key/value settings store.
type Store interface {
	// Get returns the raw value for a key. The second return value is false
	// when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a value for a key, creating it when missing.
	Set(ctx context.Context, key, value string) error
}
