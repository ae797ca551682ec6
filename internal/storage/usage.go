package storage

import (
	"context"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

// DiskUsage reports what is physically stored on one disk.
type DiskUsage struct {
	Disk           disk.Name      `json:"disk"`
	TotalSize      int64          `json:"total_size"`
	TotalSizeHuman string         `json:"total_size_human"`
	FileCount      int            `json:"file_count"`
	FilesByType    map[string]int `json:"files_by_type"`
}

// GetDiskUsage lists the disk and summarizes it. The registry is not consulted.
func (s *Service) GetDiskUsage(ctx context.Context, name disk.Name) (DiskUsage, error) {
	d, err := s.disk(name)
	if err != nil {
		return DiskUsage{}, err
	}

	usage, err := disk.UsageOf(ctx, d)
	if err != nil {
		return DiskUsage{}, wrapError(ErrCodeDiskUnavailable, err, true, "compute disk usage")
	}

	return DiskUsage{
		Disk:           name,
		TotalSize:      usage.TotalSize,
		TotalSizeHuman: humanize.IBytes(uint64(usage.TotalSize)),
		FileCount:      usage.FileCount,
		FilesByType:    usage.CountsByExtension,
	}, nil
}

// GetAllDiskUsage summarizes every configured disk concurrently, in display order.
func (s *Service) GetAllDiskUsage(ctx context.Context) ([]DiskUsage, error) {
	names := s.disks.Names()
	usages := make([]DiskUsage, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			usage, err := s.GetDiskUsage(gctx, name)
			if err != nil {
				return err
			}
			usages[i] = usage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return usages, nil
}
