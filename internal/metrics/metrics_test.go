package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/eventbus"
	crawltest "github.com/lsst-dm/imgcrawl/internal/testutil"
)

func newTestMetrics(t *testing.T) (*MetricsService, *eventbus.EventBus) {
	t.Helper()
	journal, err := crawltest.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	eb := eventbus.NewEventBus(journal)
	t.Cleanup(eb.Shutdown)

	return NewMetricsService(eb, prometheus.NewRegistry()), eb
}

func TestMetrics_CycleCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.handleCycleCompleted(domain.Event{
		EventType: domain.CycleCompleted,
		EventData: map[string]any{"fetched": int64(42)},
	})
	m.handleCycleFailed(domain.Event{EventType: domain.CycleFailed})
	m.handleCycleFailed(domain.Event{EventType: domain.CycleFailed})

	if got := testutil.ToFloat64(m.cyclesTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("cycles completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cyclesTotal.WithLabelValues("failed")); got != 2 {
		t.Errorf("cycles failed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastBatchSize); got != 42 {
		t.Errorf("last batch size = %v, want 42", got)
	}
}

func TestMetrics_DatasetOutcomes(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.handleDatasetScanned(domain.Event{
		EventType: domain.DatasetScanned,
		EventData: map[string]any{"size": int64(2048)},
	})
	m.handleDatasetScanFailed(domain.Event{
		EventType: domain.DatasetScanFailed,
		EventData: map[string]any{"reason": domain.FailureLocationMissing},
	})
	m.handleDatasetScanFailed(domain.Event{
		EventType: domain.DatasetScanFailed,
		EventData: map[string]any{},
	})

	if got := testutil.ToFloat64(m.datasetsTotal.WithLabelValues("scanned")); got != 1 {
		t.Errorf("datasets scanned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.datasetsTotal.WithLabelValues(domain.FailureLocationMissing)); got != 1 {
		t.Errorf("datasets location_missing = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.datasetsTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("datasets unknown = %v, want 1", got)
	}
}

func TestMetrics_EndToEndViaEventBus(t *testing.T) {
	m, eb := newTestMetrics(t)
	m.Start()

	if err := eb.Publish(domain.Event{
		AggregateType: domain.AggregateDataset,
		AggregateID:   "/d/1",
		EventType:     domain.DatasetScanned,
		EventData:     map[string]any{"size": int64(1024)},
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.datasetsTotal.WithLabelValues("scanned")) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("DatasetScanned event never reached the counter")
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.handleCycleCompleted(domain.Event{EventData: map[string]any{"fetched": int64(3)}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "imgcrawl_cycles_total") {
		t.Error("/metrics output missing imgcrawl_cycles_total")
	}
	if !strings.Contains(string(body), "imgcrawl_last_batch_size 3") {
		t.Error("/metrics output missing imgcrawl_last_batch_size 3")
	}
}
