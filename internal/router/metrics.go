// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the router's Prometheus collectors.
type metrics struct {
	events            *prometheus.CounterVec
	signatureFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ignition",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events processed, by event type and outcome.",
		}, []string{"type", "outcome"}),
		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ignition",
			Subsystem: "webhook",
			Name:      "signature_failures_total",
			Help:      "Webhook deliveries rejected for an invalid signature.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.signatureFailures)
	}
	return m
}

func (m *metrics) recordEvent(eventType string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}
