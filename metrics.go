// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package userdata

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "userdata"

// metrics are the Prometheus collectors of a Manager. They are always collected
// and only exposed when registered.
type metrics struct {
	opened          *prometheus.CounterVec
	loadFailures    *prometheus.CounterVec
	tempdataExpired prometheus.Counter
	gcErrors        prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of sessions opened, by the configured driver",
		}, []string{"driver"}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "driver_load_failures_total",
			Help:      "Total number of failed driver loads",
		}, []string{"driver"}),
		tempdataExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tempdata_expired_total",
			Help:      "Total number of tempdata entries removed after expiry",
		}),
		gcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gc_errors_total",
			Help:      "Total number of failed store GC operations",
		}),
	}
}

// register registers all collectors with given registerer.
func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.opened,
		m.loadFailures,
		m.tempdataExpired,
		m.gcErrors,
	} {
		err := r.Register(c)
		if err != nil {
			return err
		}
	}
	return nil
}
