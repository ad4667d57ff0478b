package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/engine"
	"github.com/srg/drumthumper/internal/orchestrator"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	Address    string           `json:"address"`
	State      string           `json:"state"`
	StreamOpen bool             `json:"stream_open"`
	Restarts   int64            `json:"restarts"`
	Triggers   map[string]int64 `json:"triggers"`
}

type stateSource interface {
	State() orchestrator.State
}

type statsSource interface {
	Stats() engine.Stats
}

// statusServer exposes health, state and Prometheus metrics over HTTP.
type statusServer struct {
	echo    *echo.Echo
	addr    string
	address string
	orch    stateSource
	player  statsSource
	logger  *logrus.Logger
}

func newStatusServer(addr, address string, orch stateSource, player statsSource, logger *logrus.Logger) *statusServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &statusServer{
		echo:    e,
		addr:    addr,
		address: address,
		orch:    orch,
		player:  player,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *statusServer) registerRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *statusServer) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *statusServer) handleStatus(c echo.Context) error {
	stats := s.player.Stats()
	triggers := make(map[string]int64, len(stats.Triggers))
	for i, n := range stats.Triggers {
		triggers[engine.Drum(i).String()] = n
	}
	return c.JSON(http.StatusOK, statusResponse{
		Address:    s.address,
		State:      s.orch.State().String(),
		StreamOpen: stats.StreamOpen,
		Restarts:   stats.Restarts,
		Triggers:   triggers,
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *statusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("Status server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
