// Package status serves the local status, control and provisioning surface.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
)

// opTimeout bounds how long a handler waits for the sync loop, which may be
// in the middle of a station connect attempt.
const opTimeout = 30 * time.Second

// Agent is the part of the sync loop the surface drives.
type Agent interface {
	Snapshot() agent.Snapshot
	Configure(ctx context.Context, creds device.Credentials) error
	SetRelay(ctx context.Context, on bool, source string) error
	SetPolarity(ctx context.Context, p device.Polarity) error
	SetAPPersistent(ctx context.Context, v bool) error
}

// Events lists recent ledger entries. Optional.
type Events interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the local HTTP surface.
type Server struct {
	addr       string
	agent      Agent
	events     Events
	httpServer *http.Server
}

// NewServer creates a status server. events may be nil.
func NewServer(addr string, a Agent, events Events) *Server {
	return &Server{
		addr:   addr,
		agent:  a,
		events: events,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/configure", s.handleConfigure).Methods(http.MethodPost)
	r.HandleFunc("/relay", s.handleRelay).Methods(http.MethodPost)
	r.HandleFunc("/relay/polarity", s.handlePolarity).Methods(http.MethodPost)
	r.HandleFunc("/ap", s.handleAP).Methods(http.MethodPost)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handleNotFound)
	r.Use(logRequests)

	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting status server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("took", time.Since(start)).
			Msg("Status request")
	})
}
