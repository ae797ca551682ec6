package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/library/log"
)

var filesCMD = &cobra.Command{
	Use:   "files",
	Short: "files",
	Long:  `batch operations over stored files`,
	Args:  gcmd.NoExtraArgs,
}

var filesCleanupOrphanedCMD = &cobra.Command{
	Use:   "cleanup-orphaned",
	Short: "delete orphaned files on every disk",
	Long: `Delete orphaned files older than --days on --disk, or on every disk.

A disk that cannot be swept is logged and skipped; the total number of
deleted files is printed at the end.`,
	Args:    gcmd.NoExtraArgs,
	PreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		names, err := resolveDisks(cmd.Flag("disk").Value.String(), rt.storage.Disks().Names())
		if err != nil {
			return err
		}
		days, err := cmd.Flags().GetInt("days")
		if err != nil {
			return errors.WithStack(err)
		}

		runCleanupOrphaned(ctx, cmd.OutOrStdout(), rt.job, names, resolveDays(days, rt.settings))
		return nil
	},
}

// runCleanupOrphaned sweeps each disk in turn and returns the total deleted.
func runCleanupOrphaned(ctx context.Context, out io.Writer, job *cleanup.Job, names []disk.Name, days int) int {
	total := 0
	for _, name := range names {
		if ctx.Err() != nil {
			log.Logger.Warn("cleanup interrupted", zap.Error(ctx.Err()))
			break
		}

		report, err := job.Sweep(ctx, name, days, false)
		total += report.Deleted
		if err != nil {
			log.Logger.Error("cleanup disk",
				zap.String("disk", name.String()),
				zap.Error(err))
			fmt.Fprintf(out, "%s: failed: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%s: deleted %d orphaned files\n", name, report.Deleted)
	}

	fmt.Fprintf(out, "total deleted: %d\n", total)
	return total
}

func init() {
	rootCMD.AddCommand(filesCMD)
	filesCMD.AddCommand(filesCleanupOrphanedCMD)

	filesCleanupOrphanedCMD.Flags().Int("days", -1, "minimum age in days, settings.storage.cleanup.days when negative")
	filesCleanupOrphanedCMD.Flags().String("disk", "", "disk to sweep, all disks when empty")
}
