//go:build linux

package relay

import (
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// Chip drives relay lines through the Linux GPIO character device.
type Chip struct {
	mu    sync.Mutex
	chip  *gpiod.Chip
	lines map[int]*gpiod.Line
}

// OpenChip opens chipName and requests every pin in initial as an output,
// driven to its initial level from the first instant.
func OpenChip(chipName string, initial map[int]Level) (*Chip, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}

	c := &Chip{
		chip:  chip,
		lines: make(map[int]*gpiod.Line),
	}

	for pin, level := range initial {
		line, err := chip.RequestLine(pin, gpiod.AsOutput(int(level)))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		c.lines[pin] = line
	}

	return c, nil
}

// WriteDigital sets an output line value.
func (c *Chip) WriteDigital(pin int, level Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not requested", pin)
	}
	if err := line.SetValue(int(level)); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// ReadDigital reads back an output line value.
func (c *Chip) ReadDigital(pin int) (Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.lines[pin]
	if !ok {
		return Low, fmt.Errorf("pin %d not requested", pin)
	}
	val, err := line.Value()
	if err != nil {
		return Low, fmt.Errorf("get pin %d value: %w", pin, err)
	}
	if val != 0 {
		return High, nil
	}
	return Low, nil
}

// Close releases all lines and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	c.lines = make(map[int]*gpiod.Line)

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
