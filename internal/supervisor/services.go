// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/logging"
)

// RouterService runs a bus router as a supervised service. Suture's Serve
// contract maps directly onto the router's blocking Run.
type RouterService struct {
	router *bus.Router
	name   string
}

// NewRouterService wraps a router.
func NewRouterService(name string, router *bus.Router) *RouterService {
	return &RouterService{router: router, name: name}
}

// Serve implements suture.Service. Blocks until context cancellation or
// router failure.
func (s *RouterService) Serve(ctx context.Context) error {
	logging.Info().Str("service", s.name).Msg("Starting message router")

	go func() {
		select {
		case <-s.router.Running():
			logging.Info().Str("service", s.name).Msg("Message router running")
		case <-ctx.Done():
		}
	}()

	err := s.router.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("router %s: %w", s.name, err)
	}
	return err
}

func (s *RouterService) String() string { return s.name }

// MetricsService serves the Prometheus exposition endpoint plus a
// liveness probe.
type MetricsService struct {
	addr    string
	healthz func(ctx context.Context) error
}

// NewMetricsService creates the metrics endpoint service. healthz, when
// non-nil, backs the /healthz probe (typically a database ping).
func NewMetricsService(host string, port int, healthz func(ctx context.Context) error) *MetricsService {
	return &MetricsService{
		addr:    fmt.Sprintf("%s:%d", host, port),
		healthz: healthz,
	}
}

// Serve implements suture.Service.
func (s *MetricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.healthz != nil {
			if err := s.healthz(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	logging.Info().Str("addr", s.addr).Msg("Metrics endpoint listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *MetricsService) String() string { return "metrics-endpoint" }
