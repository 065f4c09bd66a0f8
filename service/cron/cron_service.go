package cron

import (
	"context"
	"fmt"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/coordinator"
	"github.com/dualtier/dtman/log"
	"github.com/robfig/cron/v3"
)

// CronService owns the periodic maintenance jobs: the consistency audit
// and a sync queue watchdog. Drain scheduling lives inside the
// coordinator itself.
type CronService struct {
	config       *config.CoordinatorConfig
	co           *coordinator.Coordinator
	jobSchedules map[int16]string
	cron         *cron.Cron
}

func NewCronService(config *config.CoordinatorConfig, co *coordinator.Coordinator) *CronService {
	return &CronService{
		config:       config,
		co:           co,
		jobSchedules: make(map[int16]string),
		cron:         cron.New(cron.WithSeconds()),
	}
}

func (job *CronService) schedulePadding() {
	job.jobSchedules[JOB_CONSISTENCY_AUDIT] = fmt.Sprintf("@every %ds", job.config.AuditInterval)
	job.jobSchedules[JOB_QUEUE_WATCH] = SCHEDULE_EVERY_MIN
}

func (job *CronService) jobList() map[int16]func() error {
	return map[int16]func() error{
		JOB_CONSISTENCY_AUDIT: job.runAudit,
		JOB_QUEUE_WATCH:       job.watchQueue,
	}
}

func (job *CronService) Start() error {
	job.schedulePadding()
	job.cron.Start()
	for k, v := range job.jobList() {
		v := v
		if spec, ok := job.jobSchedules[k]; ok {
			if _, err := job.cron.AddFunc(spec, func() {
				_ = v()
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (job *CronService) Stop() {
	job.cron.Stop()
	log.Logger.Infof("cron service stopped")
}

func (job *CronService) runAudit() error {
	_, err := job.co.RunConsistencyAudit(context.Background())
	if err != nil {
		log.Logger.Errorf("scheduled consistency audit failed: %v", err)
	}
	return err
}

func (job *CronService) watchQueue() error {
	depth := job.co.QueueDepth()
	if depth > job.config.MaxSyncBatchSize {
		log.Logger.Warnf("sync queue depth %d exceeds one batch, durable tier may be lagging", depth)
	}
	return nil
}
