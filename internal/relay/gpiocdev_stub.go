//go:build !linux

package relay

import "errors"

// Chip is unavailable outside Linux; use the "sim" relay driver.
type Chip struct{}

// OpenChip always fails on this platform.
func OpenChip(string, map[int]Level) (*Chip, error) {
	return nil, errors.New("gpio character device requires linux")
}

func (c *Chip) WriteDigital(int, Level) error  { return errors.New("gpio unavailable") }
func (c *Chip) ReadDigital(int) (Level, error) { return Low, errors.New("gpio unavailable") }
func (c *Chip) Close() error                   { return nil }
