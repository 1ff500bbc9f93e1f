package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lsst-dm/imgcrawl/internal/catalog"
	"github.com/lsst-dm/imgcrawl/internal/clock"
	"github.com/lsst-dm/imgcrawl/internal/domain"
)

// MockClock is a manually advanced clock. AfterFunc callbacks queue up
// and fire, in deadline order, when Advance moves the clock past them.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*mockTimer
}

var _ clock.Clock = (*MockClock)(nil)

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{clock: c, at: c.now.Add(d), f: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward and runs every pending callback whose
// deadline has been reached. Callbacks run synchronously on the caller's
// goroutine, in deadline order.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*mockTimer
	var rest []*mockTimer
	for _, t := range c.pending {
		if !t.at.After(c.now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.pending = rest
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fire()
	}
}

// PendingTimers reports how many AfterFunc callbacks have not yet fired.
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

type mockTimer struct {
	clock   *MockClock
	at      time.Time
	f       func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// MockCatalog is a scripted catalog client. Tests preload search results
// and errors; every call is recorded for assertion.
type MockCatalog struct {
	mu sync.Mutex

	// SearchResults is consumed one batch per Search call; once drained,
	// Search returns empty batches. SearchErr, when set, fails every
	// Search instead.
	SearchResults [][]domain.Dataset
	SearchErr     error

	// PatchErrs maps dataset path to the error Patch should return for it.
	PatchErrs map[string]error

	SearchCalls []catalog.SearchRequest
	PatchCalls  []PatchCall
}

var _ catalog.Client = (*MockCatalog)(nil)

// PatchCall records one Patch invocation.
type PatchCall struct {
	DatasetPath string
	Result      domain.ScanResult
	VersionID   int
	Site        string
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{PatchErrs: make(map[string]error)}
}

func (m *MockCatalog) Search(_ context.Context, req catalog.SearchRequest) ([]domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, req)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if len(m.SearchResults) == 0 {
		return nil, nil
	}
	batch := m.SearchResults[0]
	m.SearchResults = m.SearchResults[1:]
	return batch, nil
}

func (m *MockCatalog) Patch(_ context.Context, datasetPath string, result domain.ScanResult, versionID int, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PatchErrs[datasetPath]; err != nil {
		return err
	}
	m.PatchCalls = append(m.PatchCalls, PatchCall{
		DatasetPath: datasetPath,
		Result:      result,
		VersionID:   versionID,
		Site:        site,
	})
	return nil
}

// Patches returns a copy of the recorded Patch calls.
func (m *MockCatalog) Patches() []PatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PatchCall, len(m.PatchCalls))
	copy(out, m.PatchCalls)
	return out
}

// Searches returns a copy of the recorded Search calls.
func (m *MockCatalog) Searches() []catalog.SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.SearchRequest, len(m.SearchCalls))
	copy(out, m.SearchCalls)
	return out
}
