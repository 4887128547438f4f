package app

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/config"
)

// AgentService runs the sync loop.
type AgentService struct {
	Loop *agent.Loop

	started atomic.Bool
	done    chan struct{}
}

// NewAgentService creates the sync loop from config.
func NewAgentService(cfg *config.Config, deps agent.Deps) *AgentService {
	loop := agent.New(agent.Options{
		DeviceName:        cfg.Device.Name,
		MAC:               cfg.Device.MAC,
		Tick:              cfg.Sync.Tick.Duration(),
		ConnectTimeout:    cfg.Link.ConnectTimeout.Duration(),
		RetryInterval:     cfg.Link.RetryInterval.Duration(),
		ReconnectDebounce: cfg.Sync.ReconnectDebounce.Duration(),
		TelemetryInterval: cfg.Sync.TelemetryInterval.Duration(),
	}, deps)

	return &AgentService{
		Loop: loop,
		done: make(chan struct{}),
	}
}

// Start runs the loop in the background. A loop that exits before ctx is
// cancelled is fatal.
func (s *AgentService) Start(ctx context.Context, onFatalError func(error)) {
	s.started.Store(true)
	go func() {
		defer close(s.done)

		err := s.Loop.Run(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Sync loop stopped")
			return
		}
		if err == nil {
			err = errors.New("sync loop exited")
		}
		onFatalError(err)
	}()
}

// Wait blocks until a started loop has exited.
func (s *AgentService) Wait() {
	if s.started.Load() {
		<-s.done
	}
}
