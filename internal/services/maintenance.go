package services

import (
	"github.com/robfig/cron/v3"

	"github.com/lsst-dm/imgcrawl/internal/db"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// maintenanceSchedule prunes the journal nightly, off-peak.
const maintenanceSchedule = "0 3 * * *"

// MaintenanceService prunes old journal rows on a nightly cron schedule
// so the diagnostic database stays bounded on long-running deployments.
type MaintenanceService struct {
	repo          *db.Repository
	retentionDays int
	cron          *cron.Cron
}

func NewMaintenanceService(repo *db.Repository, retentionDays int) *MaintenanceService {
	return &MaintenanceService{
		repo:          repo,
		retentionDays: retentionDays,
		cron:          cron.New(),
	}
}

// Start registers the nightly job and begins the cron loop.
func (m *MaintenanceService) Start() error {
	_, err := m.cron.AddFunc(maintenanceSchedule, func() {
		if err := m.RunNow(); err != nil {
			logger.Errorf("Scheduled journal maintenance failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	logger.Infof("Journal maintenance scheduled (%s), retention %d days", maintenanceSchedule, m.retentionDays)
	return nil
}

// Stop halts the cron loop. A run already in progress finishes.
func (m *MaintenanceService) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// RunNow prunes and compacts the journal immediately.
func (m *MaintenanceService) RunNow() error {
	return m.repo.RunMaintenance(m.retentionDays)
}
