// SPDX-License-Identifier: Apache-2.0
//
// Copyright 2025 Jeremy Hahn
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics collects Prometheus metrics for the signing device.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrRegistrationFailed indicates a metric could not be registered.
var ErrRegistrationFailed = errors.New("metrics: registration failed")

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeDenied   = "denied"
	OutcomeCanceled = "canceled"
	OutcomeFailed   = "failed"
)

// Config holds configuration for the collector.
type Config struct {
	// Enabled controls whether metrics are recorded.
	Enabled bool

	// Namespace is the Prometheus namespace (default: "frostsigner").
	Namespace string

	// Subsystem is the Prometheus subsystem (default: "device").
	Subsystem string

	// SigningBuckets are the histogram buckets for signing latency.
	SigningBuckets []float64
}

// DefaultConfig returns an enabled configuration with default names.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "frostsigner",
		Subsystem: "device",
		SigningBuckets: []float64{
			0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
		},
	}
}

// Collector records device metrics into its own registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	chunksTotal     *prometheus.CounterVec
	chunkBytes      *prometheus.CounterVec
	ceremoniesTotal *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	signingDuration prometheus.Histogram

	pendingResults      atomic.Int64
	pendingResultsGauge prometheus.GaugeFunc
}

// MetricsError wraps a registration failure.
type MetricsError struct {
	Op  string
	Err error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics: %s: %v", e.Op, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

func (e *MetricsError) Is(target error) bool { return target == ErrRegistrationFailed }

// New creates a collector with a private registry.
func New(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	defaults := DefaultConfig()
	namespace := config.Namespace
	if namespace == "" {
		namespace = defaults.Namespace
	}
	subsystem := config.Subsystem
	if subsystem == "" {
		subsystem = defaults.Subsystem
	}
	buckets := config.SigningBuckets
	if buckets == nil {
		buckets = defaults.SigningBuckets
	}

	c := &Collector{config: config, registry: prometheus.NewRegistry()}

	c.commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commands_total",
		Help:      "Commands processed by instruction and status word.",
	}, []string{"ins", "status"})

	c.chunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chunks_received_total",
		Help:      "Input chunks accepted by instruction.",
	}, []string{"ins"})

	c.chunkBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chunk_bytes_total",
		Help:      "Input payload bytes accepted by instruction.",
	}, []string{"ins"})

	c.ceremoniesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ceremonies_total",
		Help:      "Completed ceremonies by kind and outcome.",
	}, []string{"kind", "outcome"})

	c.confirmations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "confirmations_total",
		Help:      "User confirmation prompts by outcome.",
	}, []string{"outcome"})

	c.signingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "signing_duration_seconds",
		Help:      "Time spent computing a signature share.",
		Buckets:   buckets,
	})

	c.pendingResultsGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_results",
		Help:      "Results waiting to be retrieved by the host.",
	}, func() float64 {
		return float64(c.pendingResults.Load())
	})

	for _, col := range []prometheus.Collector{
		c.commandsTotal,
		c.chunksTotal,
		c.chunkBytes,
		c.ceremoniesTotal,
		c.confirmations,
		c.signingDuration,
		c.pendingResultsGauge,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, &MetricsError{Op: "register", Err: err}
		}
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled && c.registry != nil
}

// Registry returns the private registry, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.Enabled() {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format. A
// disabled collector serves 404.
func (c *Collector) Handler() http.Handler {
	if !c.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordCommand counts a processed command.
func (c *Collector) RecordCommand(ins string, status uint16) {
	if !c.Enabled() {
		return
	}
	c.commandsTotal.WithLabelValues(ins, fmt.Sprintf("0x%04X", status)).Inc()
}

// RecordChunk counts an accepted input chunk.
func (c *Collector) RecordChunk(ins string, size int) {
	if !c.Enabled() {
		return
	}
	c.chunksTotal.WithLabelValues(ins).Inc()
	c.chunkBytes.WithLabelValues(ins).Add(float64(size))
}

// RecordCeremony counts a finished ceremony.
func (c *Collector) RecordCeremony(kind, outcome string) {
	if !c.Enabled() {
		return
	}
	c.ceremoniesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordConfirmation counts a confirmation prompt result.
func (c *Collector) RecordConfirmation(outcome string) {
	if !c.Enabled() {
		return
	}
	c.confirmations.WithLabelValues(outcome).Inc()
}

// ObserveSigning records how long a signature share took.
func (c *Collector) ObserveSigning(d time.Duration) {
	if !c.Enabled() {
		return
	}
	c.signingDuration.Observe(d.Seconds())
}

// SetPendingResult marks whether a result is waiting for retrieval.
func (c *Collector) SetPendingResult(pending bool) {
	if !c.Enabled() {
		return
	}
	if pending {
		c.pendingResults.Store(1)
	} else {
		c.pendingResults.Store(0)
	}
}
