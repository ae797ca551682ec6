// Package cleanup runs orphan sweeps over the storage disks: one sweep
// per disk at a time, with reports, metrics and an optional cron schedule.
package cleanup

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	rlib "github.com/Laisky/campus-portal/library/db/redis"
	"github.com/Laisky/campus-portal/library/log"
)

// ErrSweepInProgress is returned when another sweep holds the disk's lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweeper performs a single orphan sweep.
type Sweeper interface {
	SweepOrphans(ctx context.Context, name disk.Name, days int, dryRun bool) (storage.SweepResult, error)
}

// Job serializes and records sweeps.
type Job struct {
	sweeper Sweeper
	locker  Locker
	reports ReportStore
	lockTTL time.Duration
	logger  logSDK.Logger
	clock   storage.Clock
}

// NewJob constructs a cleanup job. Nil lockers and report stores fall back to in-memory ones.
func NewJob(sweeper Sweeper, locker Locker, reports ReportStore, lockTTL time.Duration, logger logSDK.Logger, clock storage.Clock) (*Job, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if reports == nil {
		reports = NewMemoryReportStore()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = log.Logger.Named("storage_cleanup")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Job{
		sweeper: sweeper,
		locker:  locker,
		reports: reports,
		lockTTL: lockTTL,
		logger:  logger,
		clock:   clock,
	}, nil
}

// Sweep runs one sweep of name under its lock and stores the report.
// The returned error is disk-level only; per-file failures are counted in the report.
func (j *Job) Sweep(ctx context.Context, name disk.Name, days int, dryRun bool) (Report, error) {
	logger := j.logger.With(zap.String("disk", name.String()))
	report := Report{Disk: name, Days: days, DryRun: dryRun, StartedAt: j.clock()}

	lease, ok, err := j.locker.TryLock(ctx, rlib.KeyPrefixCleanupLock+name.String(), j.lockTTL)
	if err != nil {
		err = errors.Wrap(err, "acquire sweep lock")
		report.Error = err.Error()
		observe(report, resultError)
		return report, err
	}
	if !ok {
		observe(report, resultSkipped)
		return report, errors.Wrapf(ErrSweepInProgress, "%s", name)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release sweep lock", zap.Error(err))
		}
	}()

	sweepCtx, lose := context.WithCancelCause(ctx)
	defer lose(nil)
	stopRefresh := j.keepLease(sweepCtx, lose, lease, logger)
	result, sweepErr := j.sweeper.SweepOrphans(sweepCtx, name, days, dryRun)
	stopRefresh()
	if cause := context.Cause(sweepCtx); sweepErr != nil && errors.Is(cause, rlib.ErrLockLost) {
		sweepErr = errors.Wrap(cause, "sweep stopped")
	}

	report.Duration = j.clock().Sub(report.StartedAt)
	report.Scanned = result.Scanned
	report.Candidates = result.Candidates
	report.Deleted = result.Deleted
	report.StaleRecords = result.StaleRecords
	report.RecordsRemoved = result.RecordsRemoved
	report.Failed = result.Failed

	switch {
	case sweepErr != nil:
		report.Error = sweepErr.Error()
		observe(report, resultError)
		logger.Error("sweep failed", zap.Error(sweepErr))
	case dryRun:
		observe(report, resultDryRun)
	default:
		observe(report, resultOK)
	}

	if err := j.reports.SaveReport(context.WithoutCancel(ctx), report); err != nil {
		logger.Warn("save sweep report", zap.Error(err))
	}
	return report, sweepErr
}

// keepLease refreshes lease every third of the lock ttl until stop is called.
// Losing the lock cancels ctx with rlib.ErrLockLost so the sweep stops.
func (j *Job) keepLease(ctx context.Context, lose context.CancelCauseFunc, lease *rlib.Lease, logger logSDK.Logger) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := lease.Refresh(ctx, j.lockTTL)
			switch {
			case err == nil:
			case errors.Is(err, rlib.ErrLockLost):
				logger.Error("sweep lock lost, stopping sweep", zap.Error(err))
				lose(err)
				return
			default:
				logger.Warn("refresh sweep lock", zap.Error(err))
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// SweepAll sweeps names in order. A failing disk does not stop the others;
// their errors are joined in the result.
func (j *Job) SweepAll(ctx context.Context, names []disk.Name, days int, dryRun bool) ([]Report, error) {
	reports := make([]Report, 0, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, errors.WithStack(err))
			break
		}

		report, err := j.Sweep(ctx, name, days, dryRun)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "sweep %s", name))
		}
	}

	return reports, errors.Join(errs...)
}

// LastReport returns the stored report of name.
func (j *Job) LastReport(ctx context.Context, name disk.Name) (Report, error) {
	return j.reports.LoadReport(ctx, name)
}

// Totals sums the deleted and failed counts of reports.
func Totals(reports []Report) (deleted, failed int) {
	for _, r := range reports {
		deleted += r.Deleted
		failed += r.Failed
	}
	return deleted, failed
}
