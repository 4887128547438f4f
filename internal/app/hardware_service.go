package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/link"
	"github.com/dokzlo13/relayd/internal/relay"
)

// Driver names accepted by relay.driver and link.driver.
const (
	DriverGPIO = "gpiocdev"
	DriverNM   = "nmcli"
	DriverSim  = "sim"

	simLinkMAC = "02:00:00:00:00:01"
)

// HardwareService owns the relay lines and the radio.
type HardwareService struct {
	Relay *relay.Controller
	Link  *link.Manager
	Radio link.Radio

	chip *relay.Chip
}

// NewHardwareService opens the relay driver first, so the output is at its
// off level before the radio is touched, then the link driver.
func NewHardwareService(cfg *config.Config, polarity device.Polarity) (*HardwareService, error) {
	s := &HardwareService{}

	pins, err := s.openPins(cfg, polarity)
	if err != nil {
		return nil, err
	}

	s.Relay, err = relay.New(pins, relay.Options{
		Pin:      cfg.Relay.Pin,
		LEDPin:   cfg.Relay.LEDPin,
		Polarity: polarity,
		ForceOff: cfg.Relay.ForceOff,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Radio, err = openRadio(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Link = link.NewManager(s.Radio, link.Options{
		PollStep:   cfg.Link.PollStep.Duration(),
		APSSID:     cfg.Link.APSSID,
		APPassword: cfg.Link.APPassword,
	})

	return s, nil
}

func (s *HardwareService) openPins(cfg *config.Config, polarity device.Polarity) (relay.Pins, error) {
	switch cfg.Relay.Driver {
	case DriverSim:
		log.Warn().Msg("Using simulated relay pins")
		return relay.NewMemoryPins(), nil
	case DriverGPIO:
		initial := map[int]relay.Level{cfg.Relay.Pin: relay.OffLevel(polarity)}
		if cfg.Relay.LEDPin >= 0 {
			initial[cfg.Relay.LEDPin] = relay.Low
		}
		chip, err := relay.OpenChip(cfg.Relay.Chip, initial)
		if err != nil {
			return nil, err
		}
		s.chip = chip
		return chip, nil
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.Relay.Driver)
	}
}

func openRadio(cfg *config.Config) (link.Radio, error) {
	switch cfg.Link.Driver {
	case DriverSim:
		networks := make(map[string]string, len(cfg.Link.SimNetworks)+1)
		for ssid, pass := range cfg.Link.SimNetworks {
			networks[ssid] = pass
		}
		if cfg.Link.SSID != "" {
			networks[cfg.Link.SSID] = cfg.Link.Passphrase
		}
		log.Warn().Int("networks", len(networks)).Msg("Using simulated radio")
		return link.NewSimRadio(simLinkMAC, networks), nil
	case DriverNM:
		return link.NewNMRadio(cfg.Link.Interface, cfg.Link.APInterface)
	default:
		return nil, fmt.Errorf("unknown link driver %q", cfg.Link.Driver)
	}
}

// Close releases the GPIO lines. The relay stays at its last level only
// until the kernel reclaims the lines.
func (s *HardwareService) Close() {
	if s.Relay != nil {
		if err := s.Relay.SetOn(false); err != nil {
			log.Warn().Err(err).Msg("Failed to drive relay off on shutdown")
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release GPIO lines")
		}
		s.chip = nil
	}
}
