// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpserver runs an http.Handler on a TCP listener until its
// context is cancelled, then drains in-flight requests.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds graceful shutdown when Config leaves
// it zero.
const DefaultShutdownTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address (e.g., ":8080",
	// "127.0.0.1:0"). Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests after the context is cancelled. Defaults to
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// WriteTimeout limits the time spent writing one response. Zero
	// means no limit, which long media downloads need.
	WriteTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server serves HTTP on a TCP listener.
type Server struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
	writeTimeout    time.Duration

	// ready is closed once the listener is bound.
	ready chan struct{}

	// addr is the bound address, valid after ready is closed.
	addr net.Addr
}

// New creates a server. Call Serve to start accepting connections.
func New(config Config) *Server {
	if config.Address == "" {
		panic("httpserver.New: Address is required")
	}
	if config.Handler == nil {
		panic("httpserver.New: Handler is required")
	}
	if config.Logger == nil {
		panic("httpserver.New: Logger is required")
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}

	return &Server{
		address:         config.Address,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		writeTimeout:    config.WriteTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound
// and accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address. Only valid after Ready() is
// closed; with port 0 in the configured address it carries the port
// the kernel assigned.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits up to the shutdown timeout for active requests.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
