// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learningequality/dynstatic/lib/config"
	"github.com/learningequality/dynstatic/lib/document"
	"github.com/learningequality/dynstatic/lib/finder"
	"github.com/learningequality/dynstatic/lib/static"
	"github.com/learningequality/dynstatic/lib/storage"
)

// buildHandler assembles the router: /metrics when enabled, and the
// static middleware in front of the upstream for everything else.
func buildHandler(ctx context.Context, cfg *config.Config, provider document.Provider, registry *prometheus.Registry, logger *slog.Logger) (http.Handler, error) {
	backend := storage.New(provider, logger)

	upstream, err := upstreamHandler(cfg.Server.Upstream, logger)
	if err != nil {
		return nil, err
	}

	immutable, err := cfg.ImmutableFileTest()
	if err != nil {
		return nil, fmt.Errorf("static.immutable_file_test: %w", err)
	}

	metrics, err := static.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("registering static metrics: %w", err)
	}

	staticConfig := static.Config{
		DynamicLocations:  cfg.Static.Locations,
		MaxAge:            time.Duration(cfg.Static.MaxAge),
		ImmutableFileTest: immutable,
		Autorefresh:       cfg.Static.Autorefresh,
		AllowAllOrigins:   cfg.Static.AllowAllOrigins,
		IndexFile:         cfg.Static.IndexFile,
		Backend:           backend,
		Metrics:           metrics,
		Logger:            logger,
	}
	if cfg.Static.Prefix != "" {
		locations := make([]finder.Location, 0, len(cfg.Static.StaticRoots))
		for _, root := range cfg.Static.StaticRoots {
			locations = append(locations, finder.Location{Root: root})
		}
		staticFinder, err := finder.New(finder.Config{
			Locations: locations,
			Backend:   backend,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("static roots: %w", err)
		}
		staticConfig.StaticPrefix = cfg.Static.Prefix
		staticConfig.StaticFinder = staticFinder
	}

	middleware, err := static.New(upstream, staticConfig)
	if err != nil {
		return nil, err
	}
	for _, entry := range cfg.Static.AddFiles {
		if _, err := middleware.AddFiles(ctx, entry.Directory, entry.Prefix); err != nil {
			return nil, err
		}
	}

	router := mux.NewRouter()
	router.Use(accessLog(logger))
	if cfg.Server.Metrics {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.PathPrefix("/").Handler(middleware)
	return router, nil
}

// upstreamHandler proxies to target, or answers 404 when target is
// empty.
func upstreamHandler(target string, logger *slog.Logger) (http.Handler, error) {
	if target == "" {
		return http.NotFoundHandler(), nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("server.upstream: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(parsed)
	proxy.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	return proxy, nil
}

// accessLog logs one debug line per request.
func accessLog(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			logger.Debug("request",
				"method", r.Method,
				"url_path", r.URL.Path,
				"status", recorder.status,
				"bytes", recorder.written,
				"duration", time.Since(start),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	n, err := r.ResponseWriter.Write(data)
	r.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
