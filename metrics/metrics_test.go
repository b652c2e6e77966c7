// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopDefault(t *testing.T) {
	// defaults to noop: meters work without registration and without panic
	Counter("test_counter").Add(1)
	CounterVec("test_counter_vec", []string{"engine"}).AddWithLabel(1, map[string]string{"engine": "gauge"})
	Gauge("test_gauge").Set(42)
	Histogram("test_histogram", []int64{0, 10, 100}).Observe(5)
	assert.Nil(t, HTTPHandler())
}

func TestLazyLoadReturnsSameMeter(t *testing.T) {
	load := LazyLoadCounter("lazy_counter")
	assert.Equal(t, load(), load())
}

func TestPrometheusMeters(t *testing.T) {
	InitializePrometheusMetrics()

	c := Counter("prom_counter")
	c.Add(3)
	// fetching again returns the cached meter
	assert.Equal(t, c, Counter("prom_counter"))

	g := Gauge("prom_gauge")
	g.Set(7)
	g.Add(-2)

	h := Histogram("prom_histogram", []int64{0, 50, 100})
	h.Observe(25)

	v := CounterVec("prom_counter_vec", []string{"engine"})
	v.AddWithLabel(1, map[string]string{"engine": "bribe"})

	assert.NotNil(t, HTTPHandler())
}
