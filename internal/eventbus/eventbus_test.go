package eventbus

import (
	"testing"
	"time"

	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/testutil"
)

func TestEventBus_PublishPersists(t *testing.T) {
	journal, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	defer journal.Close()

	eb := NewEventBus(journal)
	defer eb.Shutdown()

	err = eb.Publish(domain.Event{
		AggregateType: domain.AggregateDataset,
		AggregateID:   "/LSST/raw/v1/file.fits",
		EventType:     domain.DatasetScanned,
		EventData:     map[string]any{"cycle_id": "c1", "size": int64(2048)},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var count int
	if err := journal.QueryRow(
		"SELECT COUNT(*) FROM events WHERE event_type = ? AND aggregate_id = ?",
		domain.DatasetScanned, "/LSST/raw/v1/file.fits").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("persisted events = %d, want 1", count)
	}
}

func TestEventBus_SubscriberReceivesEvent(t *testing.T) {
	journal, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	defer journal.Close()

	eb := NewEventBus(journal)
	defer eb.Shutdown()

	received := make(chan domain.Event, 1)
	eb.Subscribe(domain.CycleCompleted, func(e domain.Event) {
		received <- e
	})

	if err := eb.Publish(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   "cycle-7",
		EventType:     domain.CycleCompleted,
		EventData:     map[string]any{"fetched": 3},
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case e := <-received:
		if e.AggregateID != "cycle-7" {
			t.Errorf("AggregateID = %q, want cycle-7", e.AggregateID)
		}
		if n, _ := e.GetInt64("fetched"); n != 3 {
			t.Errorf("fetched = %d, want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestEventBus_SubscriberOnlyGetsItsType(t *testing.T) {
	journal, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	defer journal.Close()

	eb := NewEventBus(journal)
	defer eb.Shutdown()

	received := make(chan domain.Event, 1)
	eb.Subscribe(domain.CycleFailed, func(e domain.Event) {
		received <- e
	})

	if err := eb.Publish(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   "cycle-8",
		EventType:     domain.CycleCompleted,
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case e := <-received:
		t.Errorf("subscriber for CycleFailed received %s", e.EventType)
	case <-time.After(100 * time.Millisecond):
	}
}
