// This file adapts the teacher's CRON/INTERVAL/ONCE job scheduler from
// driving arbitrary SQL text to driving the core's two background
// maintenance jobs: GC sweeps (spec §4.6) and index-builder ticks (spec
// §4.4). The scheduling machinery (robfig/cron parsing, interval
// catch-up, no-overlap guarding) is kept exactly as the teacher built it;
// only the executed payload changes.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceExecutor runs one maintenance job tick. Implementations:
// a GC sweep (Recycler.Sweep) or one index-builder step
// (Builder.BuildOneTileGroup).
type MaintenanceExecutor interface {
	RunMaintenance(ctx context.Context, job *CatalogJob) error
}

// MaintenanceFunc adapts a plain function to MaintenanceExecutor.
type MaintenanceFunc func(ctx context.Context, job *CatalogJob) error

func (f MaintenanceFunc) RunMaintenance(ctx context.Context, job *CatalogJob) error {
	return f(ctx, job)
}

// Scheduler manages scheduled maintenance job execution.
type Scheduler struct {
	catalog *CatalogManager
	cron    *cron.Cron

	mu       sync.RWMutex
	running  map[string]*jobExecution
	stopCh   chan struct{}
	executor MaintenanceExecutor
	log      *Logger
}

type jobExecution struct {
	startTime time.Time
	cancelFn  context.CancelFunc
}

// NewScheduler creates a job scheduler bound to a catalog and the
// executor that will actually perform each job's maintenance action.
func NewScheduler(catalog *CatalogManager, executor MaintenanceExecutor) *Scheduler {
	loc, _ := time.LoadLocation("UTC")
	return &Scheduler{
		catalog:  catalog,
		cron:     cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		running:  make(map[string]*jobExecution),
		stopCh:   make(chan struct{}),
		executor: executor,
		log:      NewLogger("scheduler"),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := s.catalog.ListEnabledJobs()
	for _, job := range jobs {
		if err := s.scheduleJob(job); err != nil {
			s.log.Errorf("failed to schedule job %q: %v", job.Name, err)
		}
	}

	s.cron.Start()
	go s.runIntervalScheduler()

	s.log.Infof("maintenance scheduler started with %d jobs", len(jobs))
	return nil
}

// Stop halts the scheduler and cancels all running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	close(s.stopCh)

	for name, exec := range s.running {
		s.log.Infof("canceling running job %q", name)
		exec.cancelFn()
	}
}

func (s *Scheduler) scheduleJob(job *CatalogJob) error {
	switch job.ScheduleType {
	case "CRON":
		return s.scheduleCronJob(job)
	case "INTERVAL":
		s.calculateNextRun(job)
		return nil
	case "ONCE":
		if job.RunAt != nil {
			job.NextRunAt = job.RunAt
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule type: %s", job.ScheduleType)
	}
}

func (s *Scheduler) scheduleCronJob(job *CatalogJob) error {
	if job.CronExpr == "" {
		return fmt.Errorf("CRON expression empty for job %q", job.Name)
	}

	loc := time.UTC
	if job.Timezone != "" {
		if l, err := time.LoadLocation(job.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warnf("invalid timezone %q for job %q, using UTC", job.Timezone, job.Name)
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid CRON expression %q: %w", job.CronExpr, err)
	}

	nextRun := schedule.Next(time.Now().In(loc))
	job.NextRunAt = &nextRun

	_, err = s.cron.AddFunc(job.CronExpr, func() {
		s.executeJob(job)
	})
	return err
}

func (s *Scheduler) runIntervalScheduler() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.checkIntervalJobs(now)
		}
	}
}

func (s *Scheduler) checkIntervalJobs(now time.Time) {
	jobs := s.catalog.ListEnabledJobs()
	for _, job := range jobs {
		if job.ScheduleType != "INTERVAL" && job.ScheduleType != "ONCE" {
			continue
		}
		if job.NextRunAt == nil {
			continue
		}
		if now.After(*job.NextRunAt) || now.Equal(*job.NextRunAt) {
			s.executeJob(job)
			if job.ScheduleType == "ONCE" {
				job.Enabled = false
				if err := s.catalog.RegisterJob(job); err != nil {
					s.log.Errorf("failed to disable ONCE job %q: %v", job.Name, err)
				}
			}
		}
	}
}

func (s *Scheduler) executeJob(job *CatalogJob) {
	s.mu.Lock()

	if job.NoOverlap {
		if _, isRunning := s.running[job.Name]; isRunning {
			s.mu.Unlock()
			s.log.Infof("job %q already running, skipping (no_overlap=true)", job.Name)
			return
		}
	}

	timeout := time.Duration(job.MaxRuntimeMs) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	exec := &jobExecution{startTime: time.Now(), cancelFn: cancel}
	s.running[job.Name] = exec
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.running, job.Name)
			s.mu.Unlock()

			lastRun := exec.startTime
			s.calculateNextRun(job)
			if err := s.catalog.UpdateJobRuntime(job.Name, lastRun, *job.NextRunAt); err != nil {
				s.log.Errorf("failed to update job runtime for %q: %v", job.Name, err)
			}
		}()

		if s.executor != nil {
			if err := s.executor.RunMaintenance(ctx, job); err != nil {
				s.log.Errorf("job %q failed: %v", job.Name, err)
			}
		} else {
			s.log.Warnf("job %q skipped (no executor configured)", job.Name)
		}
	}()
}

func (s *Scheduler) calculateNextRun(job *CatalogJob) {
	now := time.Now()

	switch job.ScheduleType {
	case "INTERVAL":
		if job.IntervalMs <= 0 {
			s.log.Warnf("invalid interval for job %q", job.Name)
			return
		}
		interval := time.Duration(job.IntervalMs) * time.Millisecond
		if job.LastRunAt == nil {
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		} else if job.CatchUp {
			nextRun := job.LastRunAt.Add(interval)
			for nextRun.Before(now) {
				nextRun = nextRun.Add(interval)
			}
			job.NextRunAt = &nextRun
		} else {
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		}

	case "CRON":
		if job.CronExpr != "" {
			parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
			if schedule, err := parser.Parse(job.CronExpr); err == nil {
				loc := time.UTC
				if job.Timezone != "" {
					if l, err := time.LoadLocation(job.Timezone); err == nil {
						loc = l
					}
				}
				nextRun := schedule.Next(now.In(loc))
				job.NextRunAt = &nextRun
			}
		}

	case "ONCE":
		// NextRunAt already set at registration.
	}
}

// AddJob registers a new job and schedules it immediately if enabled.
func (s *Scheduler) AddJob(job *CatalogJob) error {
	if err := s.catalog.RegisterJob(job); err != nil {
		return err
	}
	if job.Enabled {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.scheduleJob(job)
	}
	return nil
}

// RemoveJob unregisters a job and stops its execution.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec, ok := s.running[name]; ok {
		exec.cancelFn()
		delete(s.running, name)
	}
	return s.catalog.DeleteJob(name)
}

// NewGCSweepJob builds a CatalogJob that ticks a Recycler sweep every
// intervalMs milliseconds.
func NewGCSweepJob(name string, intervalMs int64) *CatalogJob {
	return &CatalogJob{
		Name:         name,
		ScheduleType: "INTERVAL",
		IntervalMs:   intervalMs,
		Enabled:      true,
		NoOverlap:    true,
	}
}

// GCSweepExecutor adapts a Recycler to MaintenanceExecutor.
func GCSweepExecutor(r *Recycler) MaintenanceExecutor {
	return MaintenanceFunc(func(ctx context.Context, job *CatalogJob) error {
		r.Sweep()
		return nil
	})
}

// BuilderStepExecutor adapts a Builder to MaintenanceExecutor, running
// one BuildOneTileGroup step per tick.
func BuilderStepExecutor(b *Builder) MaintenanceExecutor {
	return MaintenanceFunc(func(ctx context.Context, job *CatalogJob) error {
		_, err := b.BuildOneTileGroup()
		return err
	})
}
