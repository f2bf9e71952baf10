// Package metrics collects and exposes Prometheus metrics for inbox scans.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes recorded per scanned email.
const (
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeNoMatch   = "no_match"
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeFailed    = "failed"
)

// Scan outcomes.
const (
	ScanCompleted    = "completed"
	ScanInterrupted  = "interrupted"
	ScanUnauthorized = "unauthorized"
)

// ScanRecorder is what the scan pipeline reports into.
type ScanRecorder interface {
	RecordScan(outcome string, duration time.Duration)
	RecordMessage(outcome string)
	RecordExtraction(duration time.Duration, err error)
	RecordPruned(count int)
}

type Collector struct {
	scans        *prometheus.CounterVec
	scanDuration prometheus.Histogram
	messages     *prometheus.CounterVec
	extractions  *prometheus.CounterVec
	extractLat   prometheus.Histogram
	pruned       prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextsteps_scans_total",
			Help: "Inbox scans by outcome",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nextsteps_scan_duration_seconds",
			Help:    "Wall time of a full inbox scan",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextsteps_scan_messages_total",
			Help: "Scanned emails by outcome",
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextsteps_extractions_total",
			Help: "LLM extraction calls by result",
		}, []string{"result"}),
		extractLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nextsteps_extraction_latency_seconds",
			Help:    "LLM extraction latency",
			Buckets: prometheus.DefBuckets,
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextsteps_pruned_records_total",
			Help: "Records deleted because their sender joined an ignore list",
		}),
	}

	reg.MustRegister(c.scans, c.scanDuration, c.messages, c.extractions, c.extractLat, c.pruned)
	return c
}

func (c *Collector) RecordScan(outcome string, duration time.Duration) {
	c.scans.WithLabelValues(outcome).Inc()
	c.scanDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordMessage(outcome string) {
	c.messages.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordExtraction(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.extractions.WithLabelValues(result).Inc()
	c.extractLat.Observe(duration.Seconds())
}

func (c *Collector) RecordPruned(count int) {
	c.pruned.Add(float64(count))
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordScan(string, time.Duration)      {}
func (Nop) RecordMessage(string)                  {}
func (Nop) RecordExtraction(time.Duration, error) {}
func (Nop) RecordPruned(int)                      {}

var (
	_ ScanRecorder = (*Collector)(nil)
	_ ScanRecorder = Nop{}
)
