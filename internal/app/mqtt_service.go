package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/mqtt"
)

// MQTTService wraps the optional MQTT mirror.
type MQTTService struct {
	cfg    *config.Config
	bridge *mqtt.Bridge
}

// NewMQTTService creates a new MQTTService.
func NewMQTTService(cfg *config.Config, a mqtt.Agent) *MQTTService {
	bridge := mqtt.New(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		User:        cfg.MQTT.User,
		Password:    cfg.MQTT.Password,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, a)
	return &MQTTService{
		cfg:    cfg,
		bridge: bridge,
	}
}

// Start begins the mirror if enabled.
func (s *MQTTService) Start(ctx context.Context) {
	if !s.cfg.MQTT.Enabled {
		log.Debug().Msg("MQTT mirror disabled")
		return
	}
	if s.cfg.MQTT.Broker == "" {
		log.Warn().Msg("MQTT enabled without a broker, mirror not started")
		return
	}

	go func() {
		if err := s.bridge.Run(ctx); err != nil {
			log.Error().Err(err).Msg("MQTT mirror error")
		}
	}()
}
