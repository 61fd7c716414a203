// Package metrics exposes per-file shipping counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the shipper metrics, labelled by watched file path.
type Collector struct {
	EventsShipped *prometheus.CounterVec
	BytesShipped  *prometheus.CounterVec
	Conflicts     *prometheus.CounterVec
	Fatal         *prometheus.CounterVec
	Window        *prometheus.GaugeVec
	Offset        *prometheus.GaugeVec
}

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		EventsShipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awatchlog",
			Name:      "events_shipped_total",
			Help:      "Log events acknowledged by the sink.",
		}, []string{"file"}),
		BytesShipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awatchlog",
			Name:      "bytes_shipped_total",
			Help:      "File bytes covered by acknowledged batches.",
		}, []string{"file"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awatchlog",
			Name:      "conflicts_total",
			Help:      "Batches rejected because of a stale sequence token.",
		}, []string{"file"}),
		Fatal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awatchlog",
			Name:      "fatal_total",
			Help:      "Shippers stopped by an unrecoverable error.",
		}, []string{"file"}),
		Window: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "awatchlog",
			Name:      "window_bytes",
			Help:      "Current read window size.",
		}, []string{"file"}),
		Offset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "awatchlog",
			Name:      "offset_bytes",
			Help:      "Last acknowledged file offset.",
		}, []string{"file"}),
	}
	reg.MustRegister(c.EventsShipped, c.BytesShipped, c.Conflicts, c.Fatal, c.Window, c.Offset)
	return c
}

// Delivered records an acknowledged batch.
func (c *Collector) Delivered(file string, events int, bytes, offset uint64) {
	if c == nil {
		return
	}
	c.EventsShipped.WithLabelValues(file).Add(float64(events))
	c.BytesShipped.WithLabelValues(file).Add(float64(bytes))
	c.Offset.WithLabelValues(file).Set(float64(offset))
}

// Advanced records an offset moved past blank lines without a send.
func (c *Collector) Advanced(file string, offset uint64) {
	if c == nil {
		return
	}
	c.Offset.WithLabelValues(file).Set(float64(offset))
}

func (c *Collector) Conflict(file string) {
	if c == nil {
		return
	}
	c.Conflicts.WithLabelValues(file).Inc()
}

func (c *Collector) Failed(file string) {
	if c == nil {
		return
	}
	c.Fatal.WithLabelValues(file).Inc()
}

func (c *Collector) WindowSize(file string, window uint64) {
	if c == nil {
		return
	}
	c.Window.WithLabelValues(file).Set(float64(window))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
