package app

import (
	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/sensor"
)

// SensorService selects the telemetry source.
type SensorService struct {
	sensor.Sensor

	script *sensor.Script
}

// NewSensorService loads the sensor script when one is configured and falls
// back to the static readings otherwise.
func NewSensorService(cfg *config.Config) (*SensorService, error) {
	static := sensor.Reading{
		Voltage: cfg.Sensor.Voltage,
		Current: cfg.Sensor.Current,
	}

	if cfg.Sensor.Script == "" {
		return &SensorService{Sensor: sensor.Static{Value: static}}, nil
	}

	script, err := sensor.NewScript(cfg.Sensor.Script, static)
	if err != nil {
		return nil, err
	}
	return &SensorService{Sensor: script, script: script}, nil
}

// Close releases the Lua state, if any.
func (s *SensorService) Close() {
	if s.script != nil {
		s.script.Close()
	}
}
