package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

func TestLoadSettingsFromConfig(t *testing.T) {
	cfgDir := t.TempDir()
	keys := map[string]any{
		"cfg_dir":                                   cfgDir,
		"settings.storage.public_prefix":            "files/",
		"settings.storage.name_attempts":            "8",
		"settings.storage.cleanup.days":             3,
		"settings.storage.cleanup.schedule":         "@daily",
		"settings.storage.cleanup.lock_ttl_seconds": 60,
		"settings.storage.disks.news.root":          "/srv/news",
		"settings.storage.disks.news.url":           "https://cdn.example.edu/news",
	}
	originals := map[string]any{}
	for key, value := range keys {
		originals[key] = gconfig.Shared.Get(key)
		gconfig.Shared.Set(key, value)
	}
	t.Cleanup(func() {
		for key, value := range originals {
			gconfig.Shared.Set(key, value)
		}
	})

	settings := LoadSettingsFromConfig()
	require.Equal(t, "/files", settings.PublicPrefix)
	require.Equal(t, 8, settings.NameAttempts)
	require.Equal(t, 3, settings.Cleanup.Days)
	require.Equal(t, "@daily", settings.Cleanup.Schedule)
	require.Equal(t, time.Minute, settings.Cleanup.LockTTL)

	require.Len(t, settings.Disks, len(disk.Names()))
	news := settings.Disks[disk.News]
	require.Equal(t, DriverLocal, news.Driver)
	require.Equal(t, "/srv/news", news.Root)
	require.Equal(t, "https://cdn.example.edu/news", news.URL)

	activities := settings.Disks[disk.Activities]
	require.Equal(t, filepath.Join(cfgDir, "storage", "activities"), activities.Root)
	require.Equal(t, "/files/activities", activities.URL)
}

func TestOpenDisks(t *testing.T) {
	settings := DefaultSettings(t.TempDir())
	manager, err := OpenDisks(context.Background(), settings)
	require.NoError(t, err)
	require.Equal(t, disk.Names(), manager.Names())

	d, err := manager.Disk(disk.Announcements)
	require.NoError(t, err)
	require.Equal(t, "/storage/announcements/x.png", d.URL("x.png"))

	settings.Disks[disk.News] = DiskSettings{Driver: "ftp"}
	_, err = OpenDisks(context.Background(), settings)
	require.Error(t, err)
}
