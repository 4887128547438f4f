// Package kv provides a key-value storage system with SQLite persistence and in-memory options.
package kv

// Bucket is the interface for key-value storage operations.
// Values are JSON-encoded at rest, so numbers read back as float64 from
// every implementation.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Store saves a value with the given key.
	// The value can be a string, number, boolean, or map.
	Store(key string, value any) error

	// Get retrieves a value by key.
	// Returns nil if the key doesn't exist.
	Get(key string) (any, error)

	// Exists returns true if the key exists.
	Exists(key string) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error

	// Update applies every write made through tx atomically: either all of
	// them are visible afterwards or none are.
	Update(fn func(tx Tx) error) error
}

// Tx collects writes for Bucket.Update.
type Tx interface {
	Store(key string, value any) error
	Delete(key string) error
}
