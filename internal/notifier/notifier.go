// Package notifier pushes crawl failures to operator channels via
// shoutrrr URLs (Slack, Discord, email, ntfy, and friends) configured in
// the environment.
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/lsst-dm/imgcrawl/internal/clock"
	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/eventbus"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// DefaultThrottle is the minimum gap between notifications of the same
// event type. Dataset failures repeat every cycle until fixed; without a
// throttle a single bad file would page every five seconds.
const DefaultThrottle = 5 * time.Minute

// Notifier subscribes to failure events and delivers them to every
// configured shoutrrr URL.
type Notifier struct {
	eventBus eventbus.Publisher
	urls     []string
	throttle time.Duration
	clk      clock.Clock

	// send is swapped out in tests; production uses shoutrrr.Send.
	send func(url, message string) error

	mu       sync.Mutex
	lastSent map[domain.EventType]time.Time
}

func NewNotifier(eb eventbus.Publisher, urls []string, clk clock.Clock) *Notifier {
	return &Notifier{
		eventBus: eb,
		urls:     urls,
		throttle: DefaultThrottle,
		clk:      clk,
		send:     shoutrrr.Send,
		lastSent: make(map[domain.EventType]time.Time),
	}
}

// Start subscribes to the failure events worth waking an operator for.
// With no URLs configured the notifier stays idle.
func (n *Notifier) Start() {
	if len(n.urls) == 0 {
		logger.Infof("Notifier disabled: no notification URLs configured")
		return
	}
	n.eventBus.Subscribe(domain.CycleFailed, n.handleCycleFailed)
	n.eventBus.Subscribe(domain.DatasetScanFailed, n.handleDatasetScanFailed)
	logger.Infof("Notifier started with %d channel(s)", len(n.urls))
}

func (n *Notifier) handleCycleFailed(event domain.Event) {
	message := fmt.Sprintf("imgcrawl: catalog search failed, cycle %s abandoned: %s",
		event.AggregateID, event.GetStringOr("error", "unknown error"))
	n.notify(event.EventType, message)
}

func (n *Notifier) handleDatasetScanFailed(event domain.Event) {
	data, ok := event.ParseDatasetFailureData()
	if !ok {
		return
	}
	message := fmt.Sprintf("imgcrawl: scan of %s failed (%s): %s",
		event.AggregateID, data.Reason, data.Error)
	n.notify(event.EventType, message)
}

// notify fans the message out to every channel, at most once per
// throttle window per event type.
func (n *Notifier) notify(eventType domain.EventType, message string) {
	if !n.canSend(eventType) {
		logger.Debugf("Throttled %s notification", eventType)
		return
	}

	for _, url := range n.urls {
		if err := n.send(url, message); err != nil {
			logger.Errorf("Failed to send notification: %v", err)
			n.publishOutcome(domain.NotificationFailed, eventType, err)
			continue
		}
		n.publishOutcome(domain.NotificationSent, eventType, nil)
	}
}

func (n *Notifier) canSend(eventType domain.EventType) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.clk.Now()
	if last, ok := n.lastSent[eventType]; ok && now.Sub(last) < n.throttle {
		return false
	}
	n.lastSent[eventType] = now
	return true
}

func (n *Notifier) publishOutcome(outcome domain.EventType, trigger domain.EventType, sendErr error) {
	data := map[string]any{"trigger": string(trigger)}
	if sendErr != nil {
		data["error"] = sendErr.Error()
	}
	if err := n.eventBus.Publish(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   "notifier",
		EventType:     outcome,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s event: %v", outcome, err)
	}
}
