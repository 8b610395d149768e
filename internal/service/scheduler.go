package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a named, scheduled unit of work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// BatchJobs are the midnight jobs: the daily ledger run, then the wallet audit.
func (s *Service) BatchJobs() []Job {
	return []Job{
		{Name: "daily", Spec: s.config.DailySchedule, Run: func(ctx context.Context) error {
			baseDate, err := s.BaseDate()
			if err != nil {
				return err
			}
			_, err = s.RunDaily(ctx, baseDate)
			return err
		}},
		{Name: "audit", Spec: s.config.AuditSchedule, Run: func(ctx context.Context) error {
			_, err := s.RunAudit(ctx)
			return err
		}},
	}
}

// MonitorJobs are the withdrawal and main-wallet watchers.
func (s *Service) MonitorJobs() []Job {
	return []Job{
		{Name: "minutely", Spec: s.config.MinutelySchedule, Run: s.RunMinutely},
		{Name: "hourly", Spec: s.config.HourlySchedule, Run: s.RunHourly},
	}
}

// RunOnce executes jobs sequentially and stops at the first failure.
func RunOnce(ctx context.Context, jobs []Job) error {
	for _, j := range jobs {
		if err := j.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", j.Name, err)
		}
	}
	return nil
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  logrus.FieldLogger
}

// NewScheduler creates a scheduler firing in the business timezone. Jobs get
// ctx, so cancelling it aborts in-flight runs. A job still running when its
// next tick fires is skipped for that tick.
func NewScheduler(ctx context.Context, s *Service, log logrus.FieldLogger) *Scheduler {
	cronLogger := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLocation(s.cal.Location()),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return &Scheduler{cron: c, ctx: ctx, log: log}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start(jobs []Job) error {
	for _, j := range jobs {
		job := j
		_, err := s.cron.AddFunc(job.Spec, func() {
			if err := job.Run(s.ctx); err != nil {
				s.log.WithField("job", job.Name).Errorf("Job failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s job %q: %w", job.Name, job.Spec, err)
		}
		s.log.WithField("job", job.Name).Infof("Scheduled %s", job.Spec)
	}
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler. The returned context is done once
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
