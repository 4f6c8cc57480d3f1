// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the authcore counters.
type Metrics struct {
	AuthOperationsTotal *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates the authcore counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_auth_operations_total",
				Help: "Auth service operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "API requests by route template and status code",
			},
			[]string{"route", "status"},
		),
	}
	reg.MustRegister(m.AuthOperationsTotal, m.HTTPRequestsTotal)
	return m
}

// RecordAuthOperation counts one auth service call.
func (m *Metrics) RecordAuthOperation(operation, result string) {
	m.AuthOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordHTTPRequest counts one API response. Unmatched routes should be
// passed as "unmatched" to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
