// Package metrics collects pipeline counters and writes them as a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"EventPoster/internal/ports"
)

// Collector records stage outcomes in a private registry.
type Collector struct {
	registry *prometheus.Registry

	venuesFetched   *prometheus.CounterVec
	eventsExtracted *prometheus.CounterVec
	imagesRendered  *prometheus.CounterVec
	pollDecisions   *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	stageDuration   *prometheus.GaugeVec
	lastRun         prometheus.Gauge
}

var _ ports.Metrics = (*Collector)(nil)

// NewCollector registers the pipeline metrics labelled with city.
func NewCollector(city string) *Collector {
	labels := prometheus.Labels{"city": city}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		venuesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventposter_venues_fetched_total",
			Help:        "Venue listing fetches by result.",
			ConstLabels: labels,
		}, []string{"venue", "result"}),
		eventsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventposter_events_extracted_total",
			Help:        "Event detail extractions by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		imagesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventposter_images_rendered_total",
			Help:        "Rendered images by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		pollDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventposter_poll_decisions_total",
			Help:        "Collected review polls by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventposter_publish_total",
			Help:        "Publish attempts by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "eventposter_stage_duration_seconds",
			Help:        "Duration of the last run of each stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "eventposter_last_run_timestamp_seconds",
			Help:        "Unix time the metrics file was last written.",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.venuesFetched,
		c.eventsExtracted,
		c.imagesRendered,
		c.pollDecisions,
		c.publishes,
		c.stageDuration,
		c.lastRun,
	)
	return c
}

// Gatherer exposes the registry.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

func (c *Collector) VenueFetched(venue string, ok bool) {
	c.venuesFetched.WithLabelValues(venue, result(ok)).Inc()
}

func (c *Collector) EventExtracted(res string) {
	c.eventsExtracted.WithLabelValues(res).Inc()
}

func (c *Collector) ImageRendered(ok bool) {
	c.imagesRendered.WithLabelValues(result(ok)).Inc()
}

func (c *Collector) PollDecided(outcome string) {
	c.pollDecisions.WithLabelValues(outcome).Inc()
}

func (c *Collector) Published(ok bool) {
	c.publishes.WithLabelValues(result(ok)).Inc()
}

func (c *Collector) StageDuration(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// WriteTextfile atomically writes the registry to path for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string, now time.Time) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	c.lastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
