package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// stubSweeper returns canned results and errors per disk.
type stubSweeper struct {
	results map[disk.Name]storage.SweepResult
	errs    map[disk.Name]error
	calls   []disk.Name
}

func (s *stubSweeper) SweepOrphans(_ context.Context, name disk.Name, _ int, dryRun bool) (storage.SweepResult, error) {
	s.calls = append(s.calls, name)
	result := s.results[name]
	result.Disk = name
	result.DryRun = dryRun
	return result, s.errs[name]
}

func newStubJob(t *testing.T, sweeper *stubSweeper) *cleanup.Job {
	t.Helper()
	job, err := cleanup.NewJob(sweeper, nil, nil, time.Minute, nil, nil)
	require.NoError(t, err)
	return job
}

func newTestRuntime(t *testing.T) *runtime {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	rt, err := buildRuntime(ctx, db, storage.DefaultSettings(t.TempDir()),
		cleanup.NewMemoryLocker(), cleanup.NewMemoryReportStore())
	require.NoError(t, err)
	require.NoError(t, rt.registry.Migrate(ctx))
	require.NoError(t, rt.directory.Migrate(ctx))
	return rt
}

func TestResolveDisks(t *testing.T) {
	all := disk.Names()

	names, err := resolveDisks("", all)
	require.NoError(t, err)
	require.Equal(t, all, names)

	names, err = resolveDisks(" News ", all)
	require.NoError(t, err)
	require.Equal(t, []disk.Name{disk.News}, names)

	_, err = resolveDisks("avatars", all)
	require.ErrorIs(t, err, disk.ErrUnknownName)

	_, err = resolveDisks("news", []disk.Name{disk.Organizations})
	require.ErrorContains(t, err, "not configured")
}

func TestResolveDays(t *testing.T) {
	settings := storage.DefaultSettings(t.TempDir())
	require.Equal(t, settings.Cleanup.Days, resolveDays(-1, settings))
	require.Equal(t, 0, resolveDays(0, settings))
	require.Equal(t, 14, resolveDays(14, settings))
}

func TestRunStorageCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("per-file failures do not fail the run", func(t *testing.T) {
		sweeper := &stubSweeper{results: map[disk.Name]storage.SweepResult{
			disk.News:          {Scanned: 3, Candidates: []string{"a.png", "b.png"}, Deleted: 1, Failed: 1},
			disk.Announcements: {Scanned: 1},
		}}
		var out bytes.Buffer
		err := runStorageCleanup(ctx, &out, newStubJob(t, sweeper), []disk.Name{disk.News, disk.Announcements}, 7, false)
		require.NoError(t, err)
		require.Contains(t, out.String(), "deleted 1 orphaned files older than 7 days, 1 failed")
		require.Equal(t, []disk.Name{disk.News, disk.Announcements}, sweeper.calls)
	})

	t.Run("dry run lists candidates", func(t *testing.T) {
		sweeper := &stubSweeper{results: map[disk.Name]storage.SweepResult{
			disk.News: {Scanned: 2, Candidates: []string{"a.png"}, StaleRecords: []string{"gone.png"}},
		}}
		var out bytes.Buffer
		err := runStorageCleanup(ctx, &out, newStubJob(t, sweeper), []disk.Name{disk.News}, 7, true)
		require.NoError(t, err)
		require.Contains(t, out.String(), "dry run: 1 orphaned files older than 7 days")
		require.Contains(t, out.String(), "news/a.png")
		require.Contains(t, out.String(), "news/gone.png (record only)")
	})

	t.Run("disk-level failure fails the run after sweeping the rest", func(t *testing.T) {
		sweeper := &stubSweeper{
			results: map[disk.Name]storage.SweepResult{disk.Announcements: {Deleted: 2}},
			errs:    map[disk.Name]error{disk.News: errors.New("disk gone")},
		}
		var out bytes.Buffer
		err := runStorageCleanup(ctx, &out, newStubJob(t, sweeper), []disk.Name{disk.News, disk.Announcements}, 7, false)
		require.ErrorContains(t, err, "disk gone")
		require.Equal(t, []disk.Name{disk.News, disk.Announcements}, sweeper.calls)
		require.Contains(t, out.String(), "deleted 2 orphaned files")
	})
}

func TestRunCleanupOrphanedContinuesPastFailures(t *testing.T) {
	sweeper := &stubSweeper{
		results: map[disk.Name]storage.SweepResult{
			disk.Organizations: {Deleted: 2},
			disk.News:          {Deleted: 3},
		},
		errs: map[disk.Name]error{disk.Activities: errors.New("unreachable")},
	}
	var out bytes.Buffer
	total := runCleanupOrphaned(context.Background(), &out, newStubJob(t, sweeper), disk.Names(), 7)

	require.Equal(t, 5, total)
	require.Equal(t, disk.Names(), sweeper.calls)
	require.Contains(t, out.String(), "activities: failed")
	require.Contains(t, out.String(), "total deleted: 5")
}

func TestRunCleanupOrphanedStopsWhenCanceled(t *testing.T) {
	sweeper := &stubSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	total := runCleanupOrphaned(ctx, &out, newStubJob(t, sweeper), disk.Names(), 7)
	require.Zero(t, total)
	require.Empty(t, sweeper.calls)
}

func TestRunStorageUsage(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	_, err := rt.storage.Store(ctx, storage.StoreRequest{
		Disk:         disk.News,
		Body:         strings.NewReader("hello"),
		OriginalName: "cover.jpg",
		MimeType:     "image/jpeg",
		Context:      registry.ContextNews,
		UploadedBy:   1,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runStorageUsage(ctx, &out, rt.storage, []disk.Name{disk.News, disk.Activities}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "news")
	require.Contains(t, lines[1], "5 B")
	require.Contains(t, lines[1], "jpg=1")
	require.Contains(t, lines[2], "activities")
}

func TestRunStorageStatus(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	orphan := filepath.Join(rt.settings.Disks[disk.News].Root, "1_00.png")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	_, err := rt.job.Sweep(ctx, disk.News, 7, false)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runStorageStatus(ctx, &out, rt.job, []disk.Name{disk.News, disk.Activities}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "news")
	require.Contains(t, lines[2], "never")
	require.NoFileExists(t, orphan)
}

func TestFormatCounts(t *testing.T) {
	require.Equal(t, "-", formatCounts(nil))
	require.Equal(t, "jpg=3 none=1 png=2", formatCounts(map[string]int{"png": 2, "none": 1, "jpg": 3}))
}
