package notifier

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Subscribe(domain.EventType, func(domain.Event)) {}

func (p *recordingPublisher) count(eventType domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func newTestNotifier(urls []string, clk *testutil.MockClock) (*Notifier, *recordingPublisher, *[]string) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, urls, clk)
	var sent []string
	n.send = func(url, message string) error {
		sent = append(sent, message)
		return nil
	}
	return n, pub, &sent
}

func TestNotifier_SendsCycleFailure(t *testing.T) {
	clk := testutil.NewMockClock(time.Now())
	n, pub, sent := newTestNotifier([]string{"slack://token@channel"}, clk)

	n.handleCycleFailed(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   "cycle-1",
		EventType:     domain.CycleFailed,
		EventData:     map[string]any{"error": "connection refused"},
	})

	if len(*sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(*sent))
	}
	if pub.count(domain.NotificationSent) != 1 {
		t.Errorf("NotificationSent events = %d, want 1", pub.count(domain.NotificationSent))
	}
}

func TestNotifier_ThrottlesRepeatedFailures(t *testing.T) {
	clk := testutil.NewMockClock(time.Now())
	n, _, sent := newTestNotifier([]string{"slack://token@channel"}, clk)

	failure := domain.Event{
		AggregateType: domain.AggregateDataset,
		AggregateID:   "/d/1",
		EventType:     domain.DatasetScanFailed,
		EventData:     map[string]any{"reason": domain.FailureChecksum, "error": "read error"},
	}

	n.handleDatasetScanFailed(failure)
	clk.Advance(time.Minute) // inside the throttle window
	n.handleDatasetScanFailed(failure)
	if len(*sent) != 1 {
		t.Fatalf("sent = %d messages inside throttle window, want 1", len(*sent))
	}

	clk.Advance(DefaultThrottle)
	n.handleDatasetScanFailed(failure)
	if len(*sent) != 2 {
		t.Errorf("sent = %d messages after throttle expiry, want 2", len(*sent))
	}
}

func TestNotifier_ThrottleIsPerEventType(t *testing.T) {
	clk := testutil.NewMockClock(time.Now())
	n, _, sent := newTestNotifier([]string{"slack://token@channel"}, clk)

	n.handleDatasetScanFailed(domain.Event{
		EventType: domain.DatasetScanFailed,
		EventData: map[string]any{"reason": domain.FailurePatch, "error": "503"},
	})
	n.handleCycleFailed(domain.Event{
		EventType: domain.CycleFailed,
		EventData: map[string]any{"error": "timeout"},
	})

	if len(*sent) != 2 {
		t.Errorf("sent = %d messages, want 2 (one per event type)", len(*sent))
	}
}

func TestNotifier_SendFailurePublishesEvent(t *testing.T) {
	clk := testutil.NewMockClock(time.Now())
	pub := &recordingPublisher{}
	n := NewNotifier(pub, []string{"slack://bad"}, clk)
	n.send = func(url, message string) error { return errors.New("webhook rejected") }

	n.handleCycleFailed(domain.Event{
		EventType: domain.CycleFailed,
		EventData: map[string]any{"error": "boom"},
	})

	if pub.count(domain.NotificationFailed) != 1 {
		t.Errorf("NotificationFailed events = %d, want 1", pub.count(domain.NotificationFailed))
	}
	if pub.count(domain.NotificationSent) != 0 {
		t.Errorf("NotificationSent events = %d, want 0", pub.count(domain.NotificationSent))
	}
}

func TestNotifier_NoURLsStaysIdle(t *testing.T) {
	clk := testutil.NewMockClock(time.Now())
	pub := &recordingPublisher{}
	n := NewNotifier(pub, nil, clk)
	n.Start() // must not subscribe or panic
}
