// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package metrics wraps rcrowley/go-metrics the way work/worker.go's
// metrics.NewRegisteredCounter calls do in the teacher tree, and bridges
// the registry to Prometheus for scraping by whatever HTTP mux the
// embedding process runs (this package never listens itself).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// DefaultRegistry is the process-wide go-metrics registry.
var DefaultRegistry = gometrics.NewRegistry()

// NewRegisteredCounter returns a counter registered under name, matching
// the teacher's metrics.NewRegisteredCounter(name, nil) call shape.
func NewRegisteredCounter(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(name, DefaultRegistry)
}

// NewRegisteredGauge returns a gauge registered under name.
func NewRegisteredGauge(name string) gometrics.Gauge {
	return gometrics.GetOrRegisterGauge(name, DefaultRegistry)
}

// Collector adapts DefaultRegistry into a prometheus.Collector so an
// embedding process can register it on its own prometheus.Registry without
// this package standing up an HTTP listener.
type Collector struct{}

var _ prometheus.Collector = Collector{}

func (Collector) Describe(ch chan<- *prometheus.Desc) {
	// Dynamic set of metrics; descriptions are emitted lazily in Collect.
}

func (Collector) Collect(ch chan<- prometheus.Metric) {
	DefaultRegistry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Counter:
			desc := prometheus.NewDesc(sanitize(name), name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case gometrics.Gauge:
			desc := prometheus.NewDesc(sanitize(name), name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))
		}
	})
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return "agentsched_" + string(out)
}
