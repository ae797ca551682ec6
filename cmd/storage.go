package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/storage/disk"
)

var storageCMD = &cobra.Command{
	Use:   "storage",
	Short: "storage",
	Long:  `inspect and clean up the storage disks`,
	Args:  gcmd.NoExtraArgs,
}

var storageCleanupCMD = &cobra.Command{
	Use:   "cleanup",
	Short: "delete orphaned files",
	Long: `Delete files that are older than --days and are not linked to a live entity.

Without --disk every configured disk is swept. Per-file failures are logged and
counted; the command only fails when a disk cannot be swept at all.`,
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
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return errors.WithStack(err)
		}

		return runStorageCleanup(ctx, cmd.OutOrStdout(), rt.job, names, resolveDays(days, rt.settings), dryRun)
	},
}

var storageUsageCMD = &cobra.Command{
	Use:     "usage",
	Short:   "show disk usage",
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
		return runStorageUsage(ctx, cmd.OutOrStdout(), rt.storage, names)
	},
}

var storageStatusCMD = &cobra.Command{
	Use:   "status",
	Short: "show the last sweep of each disk",
	Long: `Show the last sweep report of each disk.

Reports survive between runs only when settings.redis.addr is configured.`,
	Args:    gcmd.NoExtraArgs,
	PreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		return runStorageStatus(ctx, cmd.OutOrStdout(), rt.job, rt.storage.Disks().Names())
	},
}

// resolveDisks returns the disk named by raw, or every configured disk when raw is empty.
func resolveDisks(raw string, configured []disk.Name) ([]disk.Name, error) {
	if strings.TrimSpace(raw) == "" {
		return configured, nil
	}

	name, err := disk.ParseName(raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, n := range configured {
		if n == name {
			return []disk.Name{name}, nil
		}
	}
	return nil, errors.Errorf("disk %q is not configured", name)
}

// resolveDays returns days, or the configured default when days is negative.
func resolveDays(days int, settings storage.Settings) int {
	if days < 0 {
		return settings.Cleanup.Days
	}
	return days
}

func runStorageCleanup(ctx context.Context, out io.Writer, job *cleanup.Job, names []disk.Name, days int, dryRun bool) error {
	reports, err := job.SweepAll(ctx, names, days, dryRun)
	printReports(out, reports)

	deleted, failed := cleanup.Totals(reports)
	if dryRun {
		candidates := 0
		for _, r := range reports {
			candidates += len(r.Candidates)
		}
		fmt.Fprintf(out, "dry run: %d orphaned files older than %d days\n", candidates, days)
		for _, r := range reports {
			for _, filename := range r.Candidates {
				fmt.Fprintf(out, "  %s/%s\n", r.Disk, filename)
			}
			for _, filename := range r.StaleRecords {
				fmt.Fprintf(out, "  %s/%s (record only)\n", r.Disk, filename)
			}
		}
	} else {
		fmt.Fprintf(out, "deleted %d orphaned files older than %d days, %d failed\n", deleted, days, failed)
	}

	return err
}

func runStorageUsage(ctx context.Context, out io.Writer, svc *storage.Service, names []disk.Name) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DISK\tFILES\tSIZE\tBY TYPE")
	for _, name := range names {
		usage, err := svc.GetDiskUsage(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "usage of %s", name)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", usage.Disk, usage.FileCount, usage.TotalSizeHuman, formatCounts(usage.FilesByType))
	}
	return errors.WithStack(w.Flush())
}

func runStorageStatus(ctx context.Context, out io.Writer, job *cleanup.Job, names []disk.Name) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DISK\tLAST SWEEP\tDAYS\tSCANNED\tDELETED\tFAILED\tERROR")
	for _, name := range names {
		report, err := job.LastReport(ctx, name)
		switch {
		case errors.Is(err, cleanup.ErrNoReport):
			fmt.Fprintf(w, "%s\tnever\t-\t-\t-\t-\t\n", name)
			continue
		case err != nil:
			return errors.Wrapf(err, "load report of %s", name)
		}

		started := humanize.Time(report.StartedAt)
		if report.DryRun {
			started += " (dry run)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", name, started, report.Days,
			report.Scanned, report.Deleted, report.Failed, report.Error)
	}
	return errors.WithStack(w.Flush())
}

func printReports(out io.Writer, reports []cleanup.Report) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DISK\tSCANNED\tCANDIDATES\tDELETED\tSTALE RECORDS\tFAILED\tTOOK\tERROR")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n", r.Disk, r.Scanned, len(r.Candidates),
			r.Deleted, len(r.StaleRecords), r.Failed, r.Duration.Round(time.Millisecond), r.Error)
	}
	_ = w.Flush()
}

// formatCounts renders extension counts like `jpg=3 png=1`, sorted by extension.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	slices.Sort(exts)

	parts := make([]string, 0, len(exts))
	for _, ext := range exts {
		parts = append(parts, fmt.Sprintf("%s=%d", ext, counts[ext]))
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCMD.AddCommand(storageCMD)
	storageCMD.AddCommand(storageCleanupCMD, storageUsageCMD, storageStatusCMD)

	storageCleanupCMD.Flags().String("disk", "", "disk to sweep, all disks when empty")
	storageCleanupCMD.Flags().Int("days", -1, "minimum age in days, settings.storage.cleanup.days when negative")
	storageCleanupCMD.Flags().Bool("dry-run", false, "list candidates without deleting")

	storageUsageCMD.Flags().String("disk", "", "disk to report, all disks when empty")
}
