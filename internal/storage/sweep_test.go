package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

const oldAge = 30 * 24 * time.Hour

// seedSweep lays out one file per orphan rule on the activities disk.
func seedSweep(t *testing.T, env *testEnv) {
	t.Helper()
	env.putAged(t, disk.Activities, "old-unregistered.png", "a", oldAge)
	env.putAged(t, disk.Activities, "young-unregistered.png", "b", time.Hour)
	env.putAged(t, disk.Activities, "old-live-owner.png", "c", oldAge)
	env.putAged(t, disk.Activities, "old-dead-owner.png", "d", oldAge)
	env.putAged(t, disk.Activities, "old-no-owner-id.png", "e", oldAge)

	env.register(t, disk.Activities, "old-live-owner.png", registry.ContextActivity, uint64Ptr(1))
	env.register(t, disk.Activities, "old-dead-owner.png", registry.ContextActivity, uint64Ptr(2))
	env.register(t, disk.Activities, "old-no-owner-id.png", registry.ContextNews, nil)
	env.owners.set(registry.ContextActivity, 1, true)
}

func TestSweepOrphansDeletesOnlyOrphans(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	seedSweep(t, env)

	result, err := env.svc.SweepOrphans(ctx, disk.Activities, 7, false)
	require.NoError(t, err)
	require.Equal(t, 5, result.Scanned)
	require.Equal(t, 1, result.Young)
	require.Equal(t, 2, result.Deleted)
	require.Zero(t, result.Failed)
	require.ElementsMatch(t, []string{"old-unregistered.png", "old-dead-owner.png"}, result.Candidates)

	require.ElementsMatch(t, []string{
		"young-unregistered.png",
		"old-live-owner.png",
		"old-no-owner-id.png",
	}, env.listNames(t, disk.Activities))

	_, err = env.reg.FindByFilename(ctx, "old-dead-owner.png")
	require.ErrorIs(t, err, registry.ErrNotFound, "stale record is removed with its object")

	for range 3 {
		deleted, err := env.svc.CleanupOrphanedFiles(ctx, disk.Activities, 7)
		require.NoError(t, err)
		require.Zero(t, deleted)
	}
	require.Len(t, env.listNames(t, disk.Activities), 3)
}

func TestSweepOrphansZeroDaysSweepsEverythingUnlinked(t *testing.T) {
	env := newTestEnv(t, nil)
	seedSweep(t, env)

	deleted, err := env.svc.CleanupOrphanedFiles(context.Background(), disk.Activities, 0)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)
}

func TestSweepOrphansDryRun(t *testing.T) {
	env := newTestEnv(t, nil)
	seedSweep(t, env)

	result, err := env.svc.SweepOrphans(context.Background(), disk.Activities, 7, true)
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Len(t, result.Candidates, 2)
	require.Zero(t, result.Deleted)
	require.Len(t, env.listNames(t, disk.Activities), 5)

	_, err = env.reg.FindByFilename(context.Background(), "old-dead-owner.png")
	require.NoError(t, err)
}

func TestSweepOrphansRecordOnOtherDiskDoesNotProtect(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putAged(t, disk.News, "moved.png", "x", oldAge)
	env.register(t, disk.Announcements, "moved.png", registry.ContextAnnouncement, nil)

	deleted, err := env.svc.CleanupOrphanedFiles(context.Background(), disk.News, 7)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = env.reg.FindByFilename(context.Background(), "moved.png")
	require.NoError(t, err, "record of another disk is left alone")
}

func TestSweepOrphansIsolatesDeleteFailures(t *testing.T) {
	var failing *failingDeleteDisk
	env := newTestEnv(t, func(local *disk.LocalDisk) disk.Disk {
		if local.Name() != disk.News {
			return local
		}
		failing = &failingDeleteDisk{LocalDisk: local, fail: map[string]bool{"b.png": true}}
		return failing
	})
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		env.putAged(t, disk.News, name, name, oldAge)
	}

	result, err := env.svc.SweepOrphans(ctx, disk.News, 7, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.Deleted)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []string{"b.png"}, env.listNames(t, disk.News))

	failing.mu.Lock()
	failing.fail = nil
	failing.mu.Unlock()

	deleted, err := env.svc.CleanupOrphanedFiles(ctx, disk.News, 7)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
	require.Empty(t, env.listNames(t, disk.News))
}

func TestSweepOrphansRemovesStaleRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAged(t, disk.News, "gone.png", oldAge)
	env.registerAged(t, disk.News, "present.png", oldAge)
	env.putAged(t, disk.News, "present.png", "x", oldAge)
	env.register(t, disk.News, "fresh.png", registry.ContextNews, nil)

	result, err := env.svc.SweepOrphans(ctx, disk.News, 7, true)
	require.NoError(t, err)
	require.Equal(t, []string{"gone.png"}, result.StaleRecords)
	require.Zero(t, result.RecordsRemoved)
	_, err = env.reg.FindByFilename(ctx, "gone.png")
	require.NoError(t, err, "dry run keeps records")

	result, err = env.svc.SweepOrphans(ctx, disk.News, 7, false)
	require.NoError(t, err)
	require.Equal(t, []string{"gone.png"}, result.StaleRecords)
	require.Equal(t, 1, result.RecordsRemoved)
	require.Zero(t, result.Failed)

	_, err = env.reg.FindByFilename(ctx, "gone.png")
	require.ErrorIs(t, err, registry.ErrNotFound)
	for _, filename := range []string{"present.png", "fresh.png"} {
		_, err = env.reg.FindByFilename(ctx, filename)
		require.NoError(t, err, filename)
	}
}

func TestSweepOrphansHealsFailedRecordDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.putAged(t, disk.Activities, "dead-owner.png", "x", oldAge)
	env.register(t, disk.Activities, "dead-owner.png", registry.ContextActivity, uint64Ptr(2))

	flaky := &flakyDeleteRegistry{FileRegistry: env.reg, deleteFails: 1}
	result, err := env.svc.WithRegistry(flaky).SweepOrphans(ctx, disk.Activities, 7, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)
	require.Equal(t, 1, result.Failed)
	require.Empty(t, env.listNames(t, disk.Activities))
	_, err = env.reg.FindByFilename(ctx, "dead-owner.png")
	require.NoError(t, err, "record outlives its object after the failed delete")

	result, err = env.svc.WithRegistry(flaky).SweepOrphans(ctx, disk.Activities, 0, false)
	require.NoError(t, err)
	require.Zero(t, result.Failed)
	require.Equal(t, 1, result.RecordsRemoved)
	_, err = env.reg.FindByFilename(ctx, "dead-owner.png")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

// failingListRegistry cannot list aged records.
type failingListRegistry struct {
	FileRegistry
}

func (failingListRegistry) ListOlderThan(context.Context, disk.Name, time.Time) ([]registry.FileRecord, error) {
	return nil, errors.New("connection refused")
}

func TestSweepOrphansRegistryListFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putAged(t, disk.News, "a.png", "a", oldAge)

	result, err := env.svc.WithRegistry(failingListRegistry{env.reg}).SweepOrphans(context.Background(), disk.News, 7, false)
	require.True(t, IsCode(err, ErrCodeRegistryUnavailable), err)
	require.Equal(t, 1, result.Deleted, "objects swept before the record pass stay counted")
}

func TestSweepOrphansOwnerCheckFailureKeepsFile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putAged(t, disk.Organizations, "logo.png", "x", oldAge)
	env.register(t, disk.Organizations, "logo.png", registry.ContextOrganization, uint64Ptr(4))
	env.owners.err = errors.New("directory unavailable")

	result, err := env.svc.SweepOrphans(context.Background(), disk.Organizations, 7, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Zero(t, result.Deleted)
	require.Equal(t, []string{"logo.png"}, env.listNames(t, disk.Organizations))
}

func TestSweepOrphansDiskLevelFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.SweepOrphans(ctx, disk.Name("tmp"), 7, false)
	require.True(t, IsCode(err, ErrCodeUnknownDisk), err)

	_, err = env.svc.SweepOrphans(ctx, disk.News, -1, false)
	require.True(t, IsCode(err, ErrCodeInvalidArgument), err)

	require.NoError(t, removeAll(env.disks[disk.News].Root()))
	_, err = env.svc.SweepOrphans(ctx, disk.News, 7, false)
	require.True(t, IsCode(err, ErrCodeDiskUnavailable), err)
}

func TestSweepOrphansStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, name := range []string{"a.png", "b.png"} {
		env.putAged(t, disk.News, name, name, oldAge)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.svc.SweepOrphans(ctx, disk.News, 7, false)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, env.listNames(t, disk.News), 2)
}

func TestGetDiskUsage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sizes := map[string]int{"a.png": 10, "b.pdf": 2000, "c": 48}
	total := 0
	for original, size := range sizes {
		_, err := env.svc.Store(ctx, StoreRequest{
			Disk:         disk.News,
			Body:         strings.NewReader(strings.Repeat("x", size)),
			OriginalName: original,
			Context:      registry.ContextNews,
		})
		require.NoError(t, err)
		total += size
	}

	usage, err := env.svc.GetDiskUsage(ctx, disk.News)
	require.NoError(t, err)
	require.Equal(t, disk.News, usage.Disk)
	require.Equal(t, int64(total), usage.TotalSize)
	require.Equal(t, 3, usage.FileCount)
	require.Equal(t, map[string]int{"png": 1, "pdf": 1, "none": 1}, usage.FilesByType)
	require.Equal(t, "2.0 KiB", usage.TotalSizeHuman)

	all, err := env.svc.GetAllDiskUsage(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(disk.Names()))
	for i, name := range disk.Names() {
		require.Equal(t, name, all[i].Disk)
	}
	require.Zero(t, all[0].FileCount)
}
