package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lsst-dm/imgcrawl/internal/catalog"
	"github.com/lsst-dm/imgcrawl/internal/clock"
	"github.com/lsst-dm/imgcrawl/internal/db"
	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/eventbus"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// SchedulerConfig carries the scan-loop settings the scheduler needs.
type SchedulerConfig struct {
	WatchFolder    string
	WatchSite      string
	DatasetVersion string
	PollInterval   time.Duration
	MaxResults     int
	RequestTimeout time.Duration
	DryRun         bool
}

// SchedulerStats is a point-in-time snapshot of loop activity, served by
// the ops API.
type SchedulerStats struct {
	Running         bool       `json:"running"`
	CyclesRun       int64      `json:"cycles_run"`
	CyclesFailed    int64      `json:"cycles_failed"`
	DatasetsScanned int64      `json:"datasets_scanned"`
	DatasetsFailed  int64      `json:"datasets_failed"`
	LastCycleID     string     `json:"last_cycle_id,omitempty"`
	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
	LastBatchSize   int        `json:"last_batch_size"`
	LastError       string     `json:"last_error,omitempty"`
}

// Scheduler runs the crawl loop: every PollInterval it asks the catalog
// for UNSCANNED datasets under the watched folder, scans each one found
// at the watched site, and patches verification results back. The
// catalog is the only source of work; the scheduler keeps no queue and
// no durable state of its own.
type Scheduler struct {
	catalog  catalog.Client
	executor *ScanExecutor
	events   eventbus.Publisher
	repo     *db.Repository
	clk      clock.Clock
	cfg      SchedulerConfig

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}

	mu    sync.Mutex
	stats SchedulerStats
}

func NewScheduler(client catalog.Client, executor *ScanExecutor, events eventbus.Publisher, repo *db.Repository, clk clock.Clock, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		catalog:  client,
		executor: executor,
		events:   events,
		repo:     repo,
		clk:      clk,
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the crawl loop. The first cycle runs immediately.
func (s *Scheduler) Start() {
	logger.Infof("Starting scan scheduler: folder=%s site=%s interval=%s max=%d dry-run=%v",
		s.cfg.WatchFolder, s.cfg.WatchSite, s.cfg.PollInterval, s.cfg.MaxResults, s.cfg.DryRun)
	s.mu.Lock()
	s.stats.Running = true
	s.mu.Unlock()
	go s.loop()
}

// Stop ends the loop and blocks until any in-flight cycle completes. A
// running cycle is never interrupted mid-batch; Stop only prevents new
// cycles from starting.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	s.mu.Lock()
	s.stats.Running = false
	s.mu.Unlock()
	logger.Infof("Scan scheduler stopped")
}

// Stats returns a snapshot of loop activity.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// loop runs cycles on a fixed cadence measured from each cycle's
// scheduled start, not from its end. A cycle that overruns the interval
// triggers the next one immediately and resets the cadence from there;
// at most one cycle is ever pending, so slow cycles never build a
// backlog of catch-up runs.
func (s *Scheduler) loop() {
	defer close(s.doneChan)

	next := s.clk.Now()
	for {
		s.runCycle()

		next = next.Add(s.cfg.PollInterval)
		wait := next.Sub(s.clk.Now())
		if wait <= 0 {
			next = s.clk.Now()
			select {
			case <-s.stopChan:
				return
			default:
			}
			continue
		}

		fired := make(chan struct{})
		timer := s.clk.AfterFunc(wait, func() { close(fired) })
		select {
		case <-fired:
		case <-s.stopChan:
			timer.Stop()
			return
		}

		select {
		case <-s.stopChan:
			return
		default:
		}
	}
}

// runCycle performs one search-and-scan pass. A search failure abandons
// the cycle; per-dataset failures are contained to their dataset. Nothing
// here ever stops the loop.
func (s *Scheduler) runCycle() {
	cycleID := uuid.New().String()
	startedAt := s.clk.Now()

	if s.repo != nil {
		if err := s.repo.RecordCycleStart(cycleID, startedAt); err != nil {
			logger.Errorf("Failed to record cycle start %s: %v", cycleID, err)
		}
	}
	s.publish(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   cycleID,
		EventType:     domain.CycleStarted,
		EventData: map[string]any{
			"folder": s.cfg.WatchFolder,
			"site":   s.cfg.WatchSite,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	datasets, err := s.catalog.Search(ctx, catalog.SearchRequest{
		Path:       s.cfg.WatchFolder,
		Version:    s.cfg.DatasetVersion,
		Site:       "all",
		Query:      catalog.QueryUnscanned,
		MaxResults: s.cfg.MaxResults,
	})
	cancel()
	if err != nil {
		logger.Errorf("Cycle %s: catalog search failed: %v", cycleID, err)
		s.finishCycle(cycleID, db.CycleStatusFailed, 0, 0, 0, err)
		return
	}

	if len(datasets) > 0 {
		logger.Infof("Cycle %s: %d unscanned dataset(s) under %s", cycleID, len(datasets), s.cfg.WatchFolder)
	} else {
		logger.Debugf("Cycle %s: no unscanned datasets", cycleID)
	}

	scanned, failed := 0, 0
	for _, dataset := range datasets {
		if s.processDataset(cycleID, dataset) {
			scanned++
		} else {
			failed++
		}
	}

	if scanned > 0 || failed > 0 {
		logger.Infof("Cycle %s: completed, %d scanned, %d failed", cycleID, scanned, failed)
	}
	s.finishCycle(cycleID, db.CycleStatusCompleted, len(datasets), scanned, failed, nil)
}

// processDataset scans one dataset and patches the result back. Returns
// true on success (or on a dry-run that would have patched).
func (s *Scheduler) processDataset(cycleID string, dataset domain.Dataset) bool {
	result, err := s.executor.Scan(dataset)
	if err != nil {
		reason := domain.FailureChecksum
		var locErr *LocationMissingError
		if errors.As(err, &locErr) {
			reason = domain.FailureLocationMissing
			logger.Warnf("Cycle %s: %v", cycleID, err)
		} else {
			logger.Errorf("Cycle %s: %v", cycleID, err)
		}
		s.publishDatasetFailure(cycleID, dataset.Path, reason, err)
		return false
	}

	if s.cfg.DryRun {
		logger.Infof("Dry-run: would patch %s (versionId=%d site=%s size=%d checksum=%s)",
			dataset.Path, dataset.VersionID, s.cfg.WatchSite, result.Size, result.Checksum)
		s.publishDatasetScanned(cycleID, dataset, result, true)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	err = s.catalog.Patch(ctx, dataset.Path, result, dataset.VersionID, s.cfg.WatchSite)
	cancel()
	if err != nil {
		logger.Errorf("Cycle %s: failed to patch %s: %v", cycleID, dataset.Path, err)
		s.publishDatasetFailure(cycleID, dataset.Path, domain.FailurePatch, err)
		return false
	}

	logger.Debugf("Cycle %s: scanned %s (size=%d checksum=%s)", cycleID, dataset.Path, result.Size, result.Checksum)
	s.publishDatasetScanned(cycleID, dataset, result, false)
	return true
}

func (s *Scheduler) publishDatasetScanned(cycleID string, dataset domain.Dataset, result domain.ScanResult, dryRun bool) {
	s.publish(domain.Event{
		AggregateType: domain.AggregateDataset,
		AggregateID:   dataset.Path,
		EventType:     domain.DatasetScanned,
		EventData: map[string]any{
			"cycle_id": cycleID,
			"site":     s.cfg.WatchSite,
			"size":     result.Size,
			"checksum": result.Checksum,
			"dry_run":  dryRun,
		},
	})
}

func (s *Scheduler) publishDatasetFailure(cycleID, datasetPath, reason string, err error) {
	s.publish(domain.Event{
		AggregateType: domain.AggregateDataset,
		AggregateID:   datasetPath,
		EventType:     domain.DatasetScanFailed,
		EventData: map[string]any{
			"cycle_id": cycleID,
			"reason":   reason,
			"error":    err.Error(),
			"site":     s.cfg.WatchSite,
		},
	})
}

// finishCycle updates the journal row, publishes the terminal cycle
// event, and rolls the stats snapshot forward.
func (s *Scheduler) finishCycle(cycleID, status string, fetched, scanned, failed int, cycleErr error) {
	completedAt := s.clk.Now()
	errMsg := ""
	if cycleErr != nil {
		errMsg = cycleErr.Error()
	}

	if s.repo != nil {
		if err := s.repo.RecordCycleEnd(cycleID, status, completedAt, fetched, scanned, failed, errMsg); err != nil {
			logger.Errorf("Failed to record cycle end %s: %v", cycleID, err)
		}
	}

	eventType := domain.CycleCompleted
	if status == db.CycleStatusFailed {
		eventType = domain.CycleFailed
	}
	s.publish(domain.Event{
		AggregateType: domain.AggregateCycle,
		AggregateID:   cycleID,
		EventType:     eventType,
		EventData: map[string]any{
			"fetched": fetched,
			"scanned": scanned,
			"failed":  failed,
			"error":   errMsg,
		},
	})

	s.mu.Lock()
	s.stats.CyclesRun++
	if status == db.CycleStatusFailed {
		s.stats.CyclesFailed++
		s.stats.LastError = errMsg
	} else {
		s.stats.LastError = ""
	}
	s.stats.DatasetsScanned += int64(scanned)
	s.stats.DatasetsFailed += int64(failed)
	s.stats.LastCycleID = cycleID
	s.stats.LastCycleAt = &completedAt
	s.stats.LastBatchSize = fetched
	s.mu.Unlock()
}

func (s *Scheduler) publish(event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(event); err != nil {
		logger.Errorf("Failed to publish %s event: %v", event.EventType, err)
	}
}
