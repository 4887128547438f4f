package kv

import (
	"database/sql"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager manages bucket lifecycle and provides access to buckets.
type Manager struct {
	db      *sql.DB
	buckets map[string]Bucket
	mu      sync.RWMutex
}

// NewManager creates a new KV manager.
// A nil db restricts the manager to in-memory buckets.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:      db,
		buckets: make(map[string]Bucket),
	}
}

// Bucket returns a bucket by name, creating it if it doesn't exist.
// If persistent is true, the bucket is backed by SQLite; otherwise it's in-memory.
func (m *Manager) Bucket(name string, persistent bool) Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if bucket already exists
	if bucket, ok := m.buckets[name]; ok {
		return bucket
	}

	// Create new bucket
	var bucket Bucket
	if persistent && m.db != nil {
		bucket = NewSQLiteBucket(m.db, name)
	} else {
		bucket = NewMemoryBucket(name)
	}

	m.buckets[name] = bucket
	log.Debug().
		Str("bucket", name).
		Bool("persistent", bucket.IsPersistent()).
		Msg("Created KV bucket")

	return bucket
}

// Exists returns true if a bucket with the given name holds any data.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	bucket, ok := m.buckets[name]
	m.mu.RUnlock()

	if ok {
		keys, err := bucket.Keys()
		return err == nil && len(keys) > 0
	}
	if m.db == nil {
		return false
	}

	// For persistent buckets, check the database
	var count int
	err := m.db.QueryRow(`
		SELECT COUNT(*) FROM kv_store WHERE bucket = ?
	`, name).Scan(&count)
	if err != nil {
		return false
	}

	return count > 0
}
