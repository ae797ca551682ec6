package cleanup

import (
	"context"
	"fmt"
	"runtime/debug"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/robfig/cron/v3"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

// Scheduler runs SweepAll on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	job    *Job
	logger logSDK.Logger
}

// NewScheduler registers a sweep of names every time spec fires.
// spec accepts the standard five fields and descriptors such as @daily.
func NewScheduler(job *Job, spec string, names []disk.Name, days int) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("cleanup job is required")
	}

	s := &Scheduler{job: job, logger: job.logger.Named("scheduler")}
	cronLogger := cronLogAdapter{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(
			s.recoverWrapper(),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	if _, err := s.cron.AddFunc(spec, func() {
		reports, err := job.SweepAll(context.Background(), names, days, false)
		deleted, failed := Totals(reports)
		if err != nil {
			s.logger.Error("scheduled sweep finished with errors",
				zap.Int("deleted", deleted), zap.Int("failed", failed), zap.Error(err))
			return
		}
		s.logger.Info("scheduled sweep finished", zap.Int("deleted", deleted), zap.Int("failed", failed))
	}); err != nil {
		return nil, errors.Wrapf(err, "parse cleanup schedule %q", spec)
	}

	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.logger.Info("cleanup scheduler started", zap.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop stops scheduling and waits for a running sweep or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("cleanup scheduler stopped")
}

func (s *Scheduler) recoverWrapper() cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("scheduled sweep panicked",
						zap.String("panic", fmt.Sprint(r)),
						zap.String("stack", string(debug.Stack())))
				}
			}()
			j.Run()
		})
	}
}

// cronLogAdapter routes cron's logr-style logging into logSDK.
type cronLogAdapter struct {
	logger logSDK.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(keysAndValues []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
