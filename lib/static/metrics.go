// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package static

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes recorded by Metrics.
const (
	// ResultCached is a request answered from the resolution cache.
	ResultCached = "cached"
	// ResultFound is a request resolved and stored on a cache miss.
	ResultFound = "found"
	// ResultNotFound is a static-prefix miss stored as NOT_FOUND.
	ResultNotFound = "not_found"
	// ResultPassthrough is a request handed to the wrapped handler.
	ResultPassthrough = "passthrough"
)

// Metrics counts resolutions and responses. A nil *Metrics records
// nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
	responses   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with
// registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynstatic",
				Subsystem: "static",
				Name:      "resolutions_total",
				Help:      "Static file resolutions by outcome.",
			},
			[]string{"result"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynstatic",
				Subsystem: "static",
				Name:      "responses_total",
				Help:      "Responses served by the static middleware, by status code.",
			},
			[]string{"status"},
		),
	}
	for _, collector := range []prometheus.Collector{m.resolutions, m.responses} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) resolution(result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
}

func (m *Metrics) response(status int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(strconv.Itoa(status)).Inc()
}
