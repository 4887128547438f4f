// Package relay owns the logical on/off state of the relay and maps it to
// physical line levels through the polarity calibration.
package relay

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/device"
)

// Level is a physical line level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Pins is the digital I/O primitive the controller drives.
type Pins interface {
	WriteDigital(pin int, level Level) error
	ReadDigital(pin int) (Level, error)
}

// Options configures a Controller.
type Options struct {
	Pin      int
	LEDPin   int // Negative disables the indicator
	Polarity device.Polarity
	ForceOff bool // Safety lock: SetOn(true) is downgraded to off
}

// Controller drives one relay and its optional indicator LED.
type Controller struct {
	mu       sync.Mutex
	pins     Pins
	pin      int
	ledPin   int
	polarity device.Polarity
	forceOff bool
	lastOn   bool
}

// New creates a controller and immediately drives the relay to the off state.
func New(pins Pins, opts Options) (*Controller, error) {
	c := &Controller{
		pins:     pins,
		pin:      opts.Pin,
		ledPin:   opts.LEDPin,
		polarity: opts.Polarity,
		forceOff: opts.ForceOff,
	}

	if err := c.write(false); err != nil {
		return nil, fmt.Errorf("failed to initialize relay off: %w", err)
	}

	log.Info().
		Int("pin", c.pin).
		Int("led_pin", c.ledPin).
		Str("polarity", c.polarity.String()).
		Bool("force_off", c.forceOff).
		Msg("Relay initialized off")

	return c, nil
}

// OffLevel returns the physical level that de-energizes a relay with polarity p.
func OffLevel(p device.Polarity) Level {
	return toLevel(false, p)
}

// IsOn reads the relay line and maps it through the current polarity.
func (c *Controller) IsOn() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.read()
}

// SetOn drives the relay to the requested logical state.
func (c *Controller) SetOn(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on && c.forceOff {
		log.Warn().Msg("Relay force-off lock active, keeping relay off")
		on = false
	}
	return c.write(on)
}

// SetPolarity changes the calibration and re-asserts the current logical state
// so the relay keeps its meaning under the new mapping.
func (c *Controller) SetPolarity(p device.Polarity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	on, err := c.read()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read relay before polarity change, using last written state")
		on = c.lastOn
	}

	prev := c.polarity
	c.polarity = p
	if err := c.write(on); err != nil {
		return err
	}

	if prev != p {
		log.Info().
			Str("from", prev.String()).
			Str("to", p.String()).
			Bool("on", on).
			Msg("Relay polarity changed")
	}
	return nil
}

// Polarity returns the current calibration.
func (c *Controller) Polarity() device.Polarity {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.polarity
}

// ForceOff reports whether the safety lock is active.
func (c *Controller) ForceOff() bool {
	return c.forceOff
}

func (c *Controller) read() (bool, error) {
	level, err := c.pins.ReadDigital(c.pin)
	if err != nil {
		return false, fmt.Errorf("failed to read relay pin %d: %w", c.pin, err)
	}
	return fromLevel(level, c.polarity), nil
}

func (c *Controller) write(on bool) error {
	if err := c.pins.WriteDigital(c.pin, toLevel(on, c.polarity)); err != nil {
		return fmt.Errorf("failed to write relay pin %d: %w", c.pin, err)
	}
	c.lastOn = on

	if c.ledPin >= 0 {
		// Indicator is always active-high
		if err := c.pins.WriteDigital(c.ledPin, toLevel(on, device.ActiveHigh)); err != nil {
			log.Warn().Err(err).Int("pin", c.ledPin).Msg("Failed to write indicator LED")
		}
	}
	return nil
}

func toLevel(on bool, p device.Polarity) Level {
	if on != (p == device.ActiveLow) {
		return High
	}
	return Low
}

func fromLevel(level Level, p device.Polarity) bool {
	return (level == High) != (p == device.ActiveLow)
}
