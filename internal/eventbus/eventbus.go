// Package eventbus fans crawl events out to in-process subscribers
// (metrics, notifier, ops websocket) and persists each one to the journal.
package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lsst-dm/imgcrawl/internal/db"
	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// Publisher is the interface services depend on, so tests can swap in a mock.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

var _ Publisher = (*EventBus)(nil)

type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewEventBus(journal *sql.DB) *EventBus {
	return &EventBus{
		db:          journal,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

// Publish persists the event to the journal, then delivers it to
// subscribers. Delivery is non-blocking; a full subscriber buffer drops the
// event for that subscriber rather than stalling the scan loop.
func (eb *EventBus) Publish(event domain.Event) error {
	logger.Debugf("EventBus: publishing %s (aggregate %s)", event.EventType, event.AggregateID)

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	res, err := db.ExecWithRetry(eb.db, `
        INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
		}
	}

	return nil
}

// Subscribe registers a handler for one event type. The handler runs on its
// own goroutine until Shutdown.
func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, 100)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				handler(event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
func (eb *EventBus) Shutdown() {
	close(eb.stopChan)
	eb.wg.Wait()
	logger.Infof("EventBus shutdown complete")
}
