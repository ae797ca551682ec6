package storage

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// SweepResult summarizes one orphan sweep over a disk.
type SweepResult struct {
	Disk disk.Name
	// Scanned counts every listed object.
	Scanned int
	// Young counts objects skipped for being newer than the age threshold.
	Young int
	// Candidates are the orphaned filenames, deleted or not.
	Candidates []string
	Deleted    int
	// StaleRecords are aged records whose object is gone, removed or not.
	StaleRecords   []string
	RecordsRemoved int
	Failed         int
	DryRun         bool
}

// CleanupOrphanedFiles deletes orphaned objects older than days and returns how many were deleted.
func (s *Service) CleanupOrphanedFiles(ctx context.Context, name disk.Name, days int) (int, error) {
	result, err := s.SweepOrphans(ctx, name, days, false)
	return result.Deleted, err
}

// SweepOrphans walks the disk one object at a time. An object at least days
// old is orphaned when no record on this disk references it, or when the
// record's owning entity is gone. It then walks the records of the disk
// created before the same cutoff and removes those whose object is gone.
// Per-file failures are logged and counted without stopping the sweep;
// only listing failures are returned.
func (s *Service) SweepOrphans(ctx context.Context, name disk.Name, days int, dryRun bool) (SweepResult, error) {
	result := SweepResult{Disk: name, DryRun: dryRun}
	if days < 0 {
		return result, NewError(ErrCodeInvalidArgument, "days must be >= 0", false)
	}
	d, err := s.disk(name)
	if err != nil {
		return result, err
	}

	logger := s.LoggerFromContext(ctx).With(zap.String("disk", name.String()))
	cutoff := s.clock().Add(-time.Duration(days) * 24 * time.Hour)

	for obj, err := range d.List(ctx) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, errors.Wrap(ctxErr, "sweep interrupted")
			}
			return result, wrapError(ErrCodeDiskUnavailable, err, true, "list disk")
		}
		result.Scanned++

		if obj.ModTime.After(cutoff) {
			result.Young++
			continue
		}

		orphan, rec, err := s.isOrphan(ctx, name, obj.Filename)
		if err != nil {
			result.Failed++
			logger.Warn("check orphan", zap.String("filename", obj.Filename), zap.Error(err))
			continue
		}
		if !orphan {
			continue
		}

		result.Candidates = append(result.Candidates, obj.Filename)
		if dryRun {
			continue
		}

		removed, err := d.Delete(ctx, obj.Filename)
		if err != nil {
			result.Failed++
			logger.Warn("delete orphaned file", zap.String("filename", obj.Filename), zap.Error(err))
			continue
		}
		if removed {
			result.Deleted++
		}

		if rec != nil {
			if err = s.registry.Delete(ctx, rec.ID); err != nil {
				result.Failed++
				logger.Warn("delete stale file record",
					zap.String("filename", obj.Filename),
					zap.Uint64("record_id", rec.ID),
					zap.Error(err))
			}
		}
	}

	if err = s.removeStaleRecords(ctx, d, cutoff, &result); err != nil {
		return result, err
	}

	logger.Info("orphan sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("deleted", result.Deleted),
		zap.Int("stale_records", len(result.StaleRecords)),
		zap.Int("records_removed", result.RecordsRemoved),
		zap.Int("failed", result.Failed),
		zap.Bool("dry_run", dryRun))
	return result, nil
}

// removeStaleRecords deletes records created before cutoff whose object no longer exists.
// They are left behind when a record delete fails after its object was removed.
func (s *Service) removeStaleRecords(ctx context.Context, d disk.Disk, cutoff time.Time, result *SweepResult) error {
	logger := s.LoggerFromContext(ctx).With(zap.String("disk", d.Name().String()))
	recs, err := s.registry.ListOlderThan(ctx, d.Name(), cutoff)
	if err != nil {
		return wrapError(ErrCodeRegistryUnavailable, err, true, "list aged file records")
	}

	for i := range recs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "sweep interrupted")
		}
		rec := &recs[i]

		exists, err := d.Exists(ctx, rec.Filename)
		if err != nil {
			result.Failed++
			logger.Warn("probe recorded file", zap.String("filename", rec.Filename), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		result.StaleRecords = append(result.StaleRecords, rec.Filename)
		if result.DryRun {
			continue
		}
		if err = s.registry.Delete(ctx, rec.ID); err != nil {
			result.Failed++
			logger.Warn("delete stale file record",
				zap.String("filename", rec.Filename),
				zap.Uint64("record_id", rec.ID),
				zap.Error(err))
			continue
		}
		result.RecordsRemoved++
	}
	return nil
}

// isOrphan returns the record that should be removed alongside an orphaned object, if any.
func (s *Service) isOrphan(ctx context.Context, name disk.Name, filename string) (bool, *registry.FileRecord, error) {
	rec, err := s.registry.Find(ctx, name, filename)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return true, nil, nil
		}
		return false, nil, errors.Wrap(err, "find file record")
	}

	// files without an identifiable owner are kept while registered
	if rec.Context == registry.ContextNone || rec.ContextID == nil {
		return false, nil, nil
	}

	exists, err := s.owners.OwnerExists(ctx, rec.Context, *rec.ContextID)
	if err != nil {
		return false, nil, errors.Wrap(err, "check owner")
	}
	if exists {
		return false, nil, nil
	}
	return true, rec, nil
}
