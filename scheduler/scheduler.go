package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"pncp_loader/config"
	"pncp_loader/models"
)

// Runner is the orchestrator surface the scheduler drives.
// *importer.Orchestrator satisfies it.
type Runner interface {
	RunIncremental(ctx context.Context, trigger models.ExecutionTrigger, filterCNPJs []string) error
	SyncOrganizations(ctx context.Context, trigger models.ExecutionTrigger, filterCNPJs []string) error
	RunQueued(ctx context.Context, e *models.Execution) error
}

// Queue is the pending side of the execution ledger.
// *storage.ExecutionStore satisfies it.
type Queue interface {
	HasInProgress(ctx context.Context) (bool, error)
	NextPending(ctx context.Context) (*models.Execution, error)
	MarkInProgress(ctx context.Context, id int64) (bool, error)
}

type Scheduler struct {
	cfg          *config.Config
	orchestrator Runner
	executions   Queue
	cron         *cron.Cron
	stopCh       chan struct{}
}

func New(cfg *config.Config, orchestrator Runner, executions Queue) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		executions:   executions,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollPending(ctx)

	log.Printf("Starting scheduler with incremental cron: %s", s.cfg.Scheduler.IncrementalCron)
	_, err := s.cron.AddFunc(s.cfg.Scheduler.IncrementalCron, func() {
		if err := s.orchestrator.RunIncremental(ctx, models.TriggerScheduler, nil); err != nil {
			log.Printf("Scheduled incremental run error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid incremental cron expression: %w", err)
	}

	if s.cfg.Scheduler.OrgSyncEnabled {
		log.Printf("Starting org sync with cron: %s", s.cfg.Scheduler.OrgSyncCron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.OrgSyncCron, func() {
			if err := s.orchestrator.SyncOrganizations(ctx, models.TriggerScheduler, nil); err != nil {
				log.Printf("Scheduled org sync error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid org sync cron expression: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	close(s.stopCh)
}

// pollPending picks up queued executions oldest-first, one at a time,
// and only while no other run is in progress.
func (s *Scheduler) pollPending(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Scheduler.PendingPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runNextPending(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runNextPending(ctx context.Context) {
	busy, err := s.executions.HasInProgress(ctx)
	if err != nil {
		log.Printf("Error checking in-progress executions: %v", err)
		return
	}
	if busy {
		return
	}

	pending, err := s.executions.NextPending(ctx)
	if err != nil {
		log.Printf("Error polling pending executions: %v", err)
		return
	}
	if pending == nil {
		return
	}

	claimed, err := s.executions.MarkInProgress(ctx, pending.ID)
	if err != nil {
		log.Printf("Error claiming execution %d: %v", pending.ID, err)
		return
	}
	if !claimed {
		return
	}
	pending.Status = models.ExecutionInProgress
	pending.StartedAt = time.Now()

	log.Printf("Processing queued execution %d (mode=%s)", pending.ID, pending.Mode)
	if err := s.orchestrator.RunQueued(ctx, pending); err != nil {
		log.Printf("Queued execution %d error: %v", pending.ID, err)
	}
}
