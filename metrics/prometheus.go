// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solace-fi/solace-native/log"
)

const namespace = "solace_native"

// InitializePrometheusMetrics creates a new instance of the Prometheus service and
// sets the implementation as the default metrics service.
func InitializePrometheusMetrics() {
	// don't allow for reset
	if _, ok := metrics.(*prometheusMetrics); !ok {
		metrics = newPrometheusMetrics()
	}
}

type prometheusMetrics struct {
	counters    sync.Map
	counterVecs sync.Map
	histograms  sync.Map
	gauges      sync.Map
}

func newPrometheusMetrics() Metrics {
	return &prometheusMetrics{}
}

func (o *prometheusMetrics) GetOrCreateCountMeter(name string) CountMeter {
	var meter CountMeter
	mapItem, ok := o.counters.Load(name)
	if !ok {
		meter = o.newCountMeter(name)
		o.counters.Store(name, meter)
	} else {
		meter = mapItem.(CountMeter)
	}
	return meter
}

func (o *prometheusMetrics) GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter {
	var meter CountVecMeter
	mapItem, ok := o.counterVecs.Load(name)
	if !ok {
		meter = o.newCountVecMeter(name, labels)
		o.counterVecs.Store(name, meter)
	} else {
		meter = mapItem.(CountVecMeter)
	}
	return meter
}

func (o *prometheusMetrics) GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter {
	var meter HistogramMeter
	mapItem, ok := o.histograms.Load(name)
	if !ok {
		meter = o.newHistogramMeter(name, buckets)
		o.histograms.Store(name, meter)
	} else {
		meter = mapItem.(HistogramMeter)
	}
	return meter
}

func (o *prometheusMetrics) GetOrCreateGaugeMeter(name string) GaugeMeter {
	var meter GaugeMeter
	mapItem, ok := o.gauges.Load(name)
	if !ok {
		meter = o.newGaugeMeter(name)
		o.gauges.Store(name, meter)
	} else {
		meter = mapItem.(GaugeMeter)
	}
	return meter
}

func (o *prometheusMetrics) GetOrCreateHandler() http.Handler {
	return promhttp.Handler()
}

func (o *prometheusMetrics) newHistogramMeter(name string, buckets []int64) HistogramMeter {
	var floatBuckets []float64
	for _, bucket := range buckets {
		floatBuckets = append(floatBuckets, float64(bucket))
	}

	meter := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Buckets:   floatBuckets,
		},
	)

	if err := prometheus.Register(meter); err != nil {
		log.Warn("unable to register metric", "err", err)
	}

	return &promHistogramMeter{
		histogram: meter,
	}
}

type promHistogramMeter struct {
	histogram prometheus.Histogram
}

func (c *promHistogramMeter) Observe(i int64) {
	c.histogram.Observe(float64(i))
}

func (o *prometheusMetrics) newCountMeter(name string) CountMeter {
	meter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		},
	)

	if err := prometheus.Register(meter); err != nil {
		log.Warn("unable to register metric", "err", err)
	}
	return &promCountMeter{
		counter: meter,
	}
}

func (o *prometheusMetrics) newCountVecMeter(name string, labels []string) CountVecMeter {
	meter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		},
		labels,
	)

	if err := prometheus.Register(meter); err != nil {
		log.Warn("unable to register metric", "err", err)
	}
	return &promCountVecMeter{
		counter: meter,
	}
}

func (o *prometheusMetrics) newGaugeMeter(name string) GaugeMeter {
	meter := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		},
	)

	if err := prometheus.Register(meter); err != nil {
		log.Warn("unable to register metric", "err", err)
	}
	return &promGaugeMeter{
		gauge: meter,
	}
}

type promCountMeter struct {
	counter prometheus.Counter
}

func (c *promCountMeter) Add(i int64) {
	c.counter.Add(float64(i))
}

type promCountVecMeter struct {
	counter *prometheus.CounterVec
}

func (c *promCountVecMeter) AddWithLabel(i int64, labels map[string]string) {
	c.counter.With(labels).Add(float64(i))
}

type promGaugeMeter struct {
	gauge prometheus.Gauge
}

func (c *promGaugeMeter) Add(i int64) {
	c.gauge.Add(float64(i))
}

func (c *promGaugeMeter) Set(i int64) {
	c.gauge.Set(float64(i))
}
