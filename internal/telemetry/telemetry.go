// Package telemetry exposes live per-section gauges on a Prometheus
// /metrics endpoint. The endpoint is optional; it is only started when
// a listen address is configured.
package telemetry

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pmlib/internal/watch"
)

const promMetricPrefix = "pmlib_"

// Server publishes section measurements as Prometheus gauges.
type Server struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	timeVec  *prometheus.GaugeVec
	callVec  *prometheus.GaugeVec
	rateVec  *prometheus.GaugeVec
	started  bool
}

// NewServer builds the gauge set. Start must be called to serve it.
func NewServer() *Server {
	s := &Server{registry: prometheus.NewRegistry()}
	s.timeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: promMetricPrefix + "section_time_seconds",
		Help: "Accumulated wall-clock time per section",
	}, []string{"section"})
	s.callVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: promMetricPrefix + "section_calls",
		Help: "Completed start/stop pairs per section",
	}, []string{"section"})
	s.rateVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: promMetricPrefix + "section_rate",
		Help: "Headline rate per section in the chooser's unit",
	}, []string{"section", "unit"})
	s.registry.MustRegister(s.timeVec, s.callVec, s.rateVec)
	return s
}

// Start serves /metrics on listenAddr in the background.
func (s *Server) Start(listenAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	slog.Info("starting metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

// Update refreshes the gauges from the current section measurements.
func (s *Server) Update(sections []*watch.Watch, unit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range sections {
		label := sanitizeLabel(sec.Label)
		count, elapsed, _ := sec.ThreadStats(0)
		s.timeVec.WithLabelValues(label).Set(elapsed)
		s.callVec.WithLabelValues(label).Set(float64(count))
		if n := len(sec.VSorted); n > 0 {
			s.rateVec.WithLabelValues(label, unit).Set(sec.VSorted[n-1])
		}
	}
}

// Registry exposes the gauge registry, mainly for tests.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

func sanitizeLabel(label string) string {
	return strings.ReplaceAll(strings.TrimSpace(label), " ", "_")
}
