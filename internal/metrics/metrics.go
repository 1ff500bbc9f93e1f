// Package metrics exposes Prometheus metrics for the crawler, fed from
// the event bus so the scan loop never touches a collector directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/eventbus"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// MetricsService subscribes to crawl events and maintains the Prometheus
// collectors served on /metrics.
type MetricsService struct {
	eventBus eventbus.Publisher
	registry *prometheus.Registry

	cyclesTotal        *prometheus.CounterVec
	datasetsTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	lastBatchSize      prometheus.Gauge
	datasetSizeBytes   prometheus.Histogram
}

// NewMetricsService creates the collectors and registers them on the
// given registry. Passing a fresh registry keeps tests isolated; main
// passes one shared with the ops server.
func NewMetricsService(eb eventbus.Publisher, registry *prometheus.Registry) *MetricsService {
	m := &MetricsService{
		eventBus: eb,
		registry: registry,

		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgcrawl_cycles_total",
				Help: "Total number of scan cycles by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		datasetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgcrawl_datasets_total",
				Help: "Total number of dataset scans by outcome",
			},
			[]string{"outcome"}, // scanned, location_missing, checksum, patch
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgcrawl_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		lastBatchSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "imgcrawl_last_batch_size",
				Help: "Number of unscanned datasets returned by the most recent catalog search",
			},
		),

		datasetSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imgcrawl_dataset_size_bytes",
				Help:    "Size distribution of scanned dataset files",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 12), // 1KiB to ~16GiB
			},
		),
	}

	registry.MustRegister(
		m.cyclesTotal,
		m.datasetsTotal,
		m.notificationsTotal,
		m.lastBatchSize,
		m.datasetSizeBytes,
	)

	return m
}

// Start subscribes to crawl events and begins updating collectors.
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.CycleCompleted, m.handleCycleCompleted)
	m.eventBus.Subscribe(domain.CycleFailed, m.handleCycleFailed)
	m.eventBus.Subscribe(domain.DatasetScanned, m.handleDatasetScanned)
	m.eventBus.Subscribe(domain.DatasetScanFailed, m.handleDatasetScanFailed)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)

	logger.Infof("Metrics service started")
}

// Handler returns the HTTP handler serving this service's registry.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsService) handleCycleCompleted(event domain.Event) {
	m.cyclesTotal.WithLabelValues("completed").Inc()
	m.lastBatchSize.Set(float64(event.GetInt64Or("fetched", 0)))
}

func (m *MetricsService) handleCycleFailed(event domain.Event) {
	m.cyclesTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleDatasetScanned(event domain.Event) {
	m.datasetsTotal.WithLabelValues("scanned").Inc()
	if size, ok := event.GetInt64("size"); ok {
		m.datasetSizeBytes.Observe(float64(size))
	}
}

func (m *MetricsService) handleDatasetScanFailed(event domain.Event) {
	reason := event.GetStringOr("reason", "unknown")
	m.datasetsTotal.WithLabelValues(reason).Inc()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}
