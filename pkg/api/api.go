package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/poller"
	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address once started.
	Addr() string
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	svc        service.Service
	poller     poller.Poller
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server. p may be nil, in which case projects
// are only synchronized on request.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	svc service.Service,
	p poller.Poller,
) Server {
	return &server{
		log:    log.WithField("component", "api"),
		cfg:    cfg,
		svc:    svc,
		poller: p,
		done:   make(chan struct{}),
	}
}

// Start binds the listener, serves HTTP in the background and then starts
// the poller.
func (s *server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.API.Listen, err)
	}

	s.listener = ln

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// The poller starts after the API is listening so the server is
	// reachable while the first pass runs.
	if s.poller != nil {
		if err := s.poller.Start(ctx); err != nil {
			return fmt.Errorf("starting poller: %w", err)
		}
	}

	return nil
}

func (s *server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop ends event streams, shuts down the HTTP server and stops the poller.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.poller != nil {
		if err := s.poller.Stop(); err != nil {
			s.log.WithError(err).Warn("Poller stop error")
		}
	}

	s.log.Info("API server stopped")

	return nil
}
