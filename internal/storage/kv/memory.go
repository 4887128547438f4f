package kv

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryEntry holds an encoded value with its metadata in memory.
type memoryEntry struct {
	data      []byte
	createdAt time.Time
	updatedAt time.Time
}

// MemoryBucket is an in-memory bucket (not persisted).
// Values are JSON-encoded on the way in so reads match SQLiteBucket exactly.
type MemoryBucket struct {
	name    string
	entries map[string]*memoryEntry
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]*memoryEntry),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// IsPersistent returns false (memory buckets are not persistent).
func (b *MemoryBucket) IsPersistent() bool {
	return false
}

// Store saves a value with the given key.
func (b *MemoryBucket) Store(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.put(key, data)
	return nil
}

// put writes an encoded value; callers hold b.mu.
func (b *MemoryBucket) put(key string, data []byte) {
	now := time.Now()

	entry := &memoryEntry{
		data:      data,
		createdAt: now,
		updatedAt: now,
	}

	// Preserve created_at if updating existing entry
	if existing, ok := b.entries[key]; ok {
		entry.createdAt = existing.createdAt
	}

	b.entries[key] = entry
}

// Get retrieves a value by key.
func (b *MemoryBucket) Get(key string) (any, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(entry.data, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return value, nil
}

// Exists returns true if the key exists.
func (b *MemoryBucket) Exists(key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[key]
	return ok, nil
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
	}
	return ok, nil
}

// Keys returns all keys in the bucket.
func (b *MemoryBucket) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Clear removes all keys from the bucket.
func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*memoryEntry)
	return nil
}

// Update stages writes and applies them under a single lock once fn succeeds.
func (b *MemoryBucket) Update(fn func(tx Tx) error) error {
	tx := &memoryTx{}
	if err := fn(tx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, op := range tx.ops {
		if op.delete {
			delete(b.entries, op.key)
			continue
		}
		b.put(op.key, op.data)
	}
	return nil
}

type memoryOp struct {
	key    string
	data   []byte
	delete bool
}

type memoryTx struct {
	ops []memoryOp
}

func (t *memoryTx) Store(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	t.ops = append(t.ops, memoryOp{key: key, data: data})
	return nil
}

func (t *memoryTx) Delete(key string) error {
	t.ops = append(t.ops, memoryOp{key: key, delete: true})
	return nil
}
