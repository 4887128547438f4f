package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/status"
)

// StatusService wraps the local status and provisioning server.
type StatusService struct {
	cfg    *config.Config
	server *status.Server
}

// NewStatusService creates a new StatusService. A nil ledger disables the
// events endpoint.
func NewStatusService(cfg *config.Config, a status.Agent, l *ledger.Ledger) *StatusService {
	var events status.Events
	if l != nil {
		events = l
	}
	return &StatusService{
		cfg:    cfg,
		server: status.NewServer(cfg.StatusAddr(), a, events),
	}
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Status.IsEnabled() {
		log.Warn().Msg("Status server disabled, device can only be provisioned from the CLI")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Status server error")
		}
	}()
}
