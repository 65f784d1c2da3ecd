// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package api serves the vault over an HTTP JSON API and provides a client
// for it.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultListenAddress   = ":8080"
	DefaultStreamHeartbeat = 15 * time.Second
)

// Config holds API server settings. MaxConnectionsPerIP of zero disables
// the per-source connection limit.
type Config struct {
	PromRegistry        prometheus.Registerer
	TracerProvider      trace.TracerProvider
	ListenAddress       string
	MaxConnectionsPerIP int
	// StreamHeartbeat is the comment interval on idle event streams
	StreamHeartbeat time.Duration
}

// Server is the vault REST API server.
type Server struct {
	config     Config
	logger     *slog.Logger
	node       VaultNode
	metrics    *apiMetrics
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	stopCh     chan struct{}
	streamDone chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(
	cfg Config,
	node VaultNode,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.StreamHeartbeat <= 0 {
		cfg.StreamHeartbeat = DefaultStreamHeartbeat
	}
	s := &Server{
		config: cfg,
		logger: logger,
		node:   node,
	}
	if cfg.PromRegistry != nil {
		s.initMetrics(cfg.PromRegistry)
	}
	s.handler = s.newHandler()
	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) newHandler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIdMiddleware, s.loggingMiddleware)
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
	}
	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/vault", s.handleVault).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}", s.handleAccount).
		Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/stream", s.handleEventStream).
		Methods(http.MethodGet)
	v1.HandleFunc("/tx", s.handleSubmitTx).Methods(http.MethodPost)
	v1.HandleFunc("/tx/{id}", s.handleGetTx).Methods(http.MethodGet)
	dev := v1.PathPrefix("/dev").Subrouter()
	dev.HandleFunc("/advance", s.handleDevAdvance).Methods(http.MethodPost)
	dev.HandleFunc("/fund", s.handleDevFund).Methods(http.MethodPost)

	var opts []otelhttp.Option
	if s.config.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.config.TracerProvider))
	}
	return otelhttp.NewHandler(r, "bequest-api", opts...)
}

// Start starts the HTTP server in a background goroutine. The server is
// shut down when ctx is cancelled or Stop is called.
func (s *Server) Start(
	ctx context.Context,
) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
	// Event streams never go idle, so end them when shutdown begins
	streamDone := make(chan struct{})
	server.RegisterOnShutdown(func() { close(streamDone) })
	if err := s.startServer(server); err != nil {
		s.mu.Unlock()
		return err
	}
	s.streamDone = streamDone
	s.httpServer = server
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info(
		"API listener started on " + s.Addr(),
	)

	// Monitor context for cancellation
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-stopCh:
			return
		}
		s.logger.Debug(
			"context cancelled, shutting down API server",
		)
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.shutdown(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddress
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(
	ctx context.Context,
) error {
	err := s.shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.mu.Unlock()

	if srv != nil {
		s.logger.Debug(
			"shutting down API server",
		)
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine. Callers
// hold s.mu.
func (s *Server) startServer(
	server *http.Server,
) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	if s.config.MaxConnectionsPerIP > 0 {
		ln = newIPLimitListener(
			ln,
			s.config.MaxConnectionsPerIP,
			s.logger,
		)
	}
	s.listener = ln
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
