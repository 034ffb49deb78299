// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package directory

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "termpool"

// Collector is a prometheus.Collector that reports the directory
// cache counters.
type Collector struct {
	directory *Directory

	hitsDesc   *prometheus.Desc
	missesDesc *prometheus.Desc
}

// NewMetricsCollector returns a Collector over the supplied
// directory.
func NewMetricsCollector(d *Directory) *Collector {
	return &Collector{
		directory: d,
		hitsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "directory", "hits_total"),
			"The number of terminal metadata lookups served from the cache.",
			nil, nil,
		),
		missesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "directory", "misses_total"),
			"The number of terminal metadata lookups re-derived from configuration.",
			nil, nil,
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hitsDesc
	ch <- c.missesDesc
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	hits, misses, _ := c.directory.Metrics()
	ch <- prometheus.MustNewConstMetric(c.hitsDesc, prometheus.CounterValue, float64(hits))
	ch <- prometheus.MustNewConstMetric(c.missesDesc, prometheus.CounterValue, float64(misses))
}
