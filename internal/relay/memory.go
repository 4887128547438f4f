package relay

import (
	"sync"
)

// MemoryPins is an in-process Pins implementation used by the "sim" driver
// and in tests. Unwritten pins read low.
type MemoryPins struct {
	mu     sync.Mutex
	levels map[int]Level
	writes int
}

// NewMemoryPins creates an empty pin bank.
func NewMemoryPins() *MemoryPins {
	return &MemoryPins{levels: make(map[int]Level)}
}

// WriteDigital sets pin to level.
func (m *MemoryPins) WriteDigital(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels[pin] = level
	m.writes++
	return nil
}

// ReadDigital returns the last level written to pin.
func (m *MemoryPins) ReadDigital(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.levels[pin], nil
}

// Writes returns the number of writes performed so far.
func (m *MemoryPins) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}
