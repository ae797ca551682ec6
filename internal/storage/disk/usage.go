package disk

import (
	"context"

	errors "github.com/Laisky/errors/v2"
)

// Usage summarizes what is physically stored on a disk.
type Usage struct {
	TotalSize         int64
	FileCount         int
	CountsByExtension map[string]int
}

// UsageOf walks the disk listing and accumulates sizes and per-extension counts.
func UsageOf(ctx context.Context, d Disk) (Usage, error) {
	usage := Usage{CountsByExtension: map[string]int{}}
	for obj, err := range d.List(ctx) {
		if err != nil {
			return Usage{}, errors.WithStack(err)
		}

		usage.TotalSize += obj.Size
		usage.FileCount++
		usage.CountsByExtension[Extension(obj.Filename)]++
	}

	return usage, nil
}
