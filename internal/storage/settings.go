package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

const (
	// DriverLocal stores a disk on the local filesystem.
	DriverLocal = "local"
	// DriverMinio stores a disk in an S3-compatible bucket.
	DriverMinio = "minio"

	defaultPublicPrefix   = "/storage"
	defaultNameAttempts   = 5
	defaultCleanupDays    = 7
	defaultCleanupLockTTL = 30 * time.Minute
)

// Settings captures runtime configuration for the storage layer.
type Settings struct {
	PublicPrefix string
	NameAttempts int
	Disks        map[disk.Name]DiskSettings
	Cleanup      CleanupSettings
}

// DiskSettings configures one logical disk.
type DiskSettings struct {
	Driver string
	// Root is the directory of a local disk.
	Root string
	// URL is the public prefix of the disk's files.
	URL       string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// CleanupSettings configures orphan sweeps.
type CleanupSettings struct {
	Days int
	// Schedule is a cron spec; empty disables scheduled sweeps.
	Schedule string
	LockTTL  time.Duration
}

// DefaultSettings returns settings with every disk on the local filesystem under root.
func DefaultSettings(root string) Settings {
	settings := Settings{
		PublicPrefix: defaultPublicPrefix,
		NameAttempts: defaultNameAttempts,
		Disks:        make(map[disk.Name]DiskSettings, len(disk.Names())),
		Cleanup: CleanupSettings{
			Days:    defaultCleanupDays,
			LockTTL: defaultCleanupLockTTL,
		},
	}
	for _, name := range disk.Names() {
		settings.Disks[name] = DiskSettings{
			Driver: DriverLocal,
			Root:   filepath.Join(root, string(name)),
			URL:    settings.PublicPrefix + "/" + string(name),
		}
	}
	return settings
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		PublicPrefix: strings.TrimSpace(gconfig.S.GetString("settings.storage.public_prefix")),
		NameAttempts: intFromConfig("settings.storage.name_attempts", defaultNameAttempts),
		Disks:        make(map[disk.Name]DiskSettings, len(disk.Names())),
		Cleanup: CleanupSettings{
			Days:     intFromConfig("settings.storage.cleanup.days", defaultCleanupDays),
			Schedule: strings.TrimSpace(gconfig.S.GetString("settings.storage.cleanup.schedule")),
			LockTTL:  time.Duration(intFromConfig("settings.storage.cleanup.lock_ttl_seconds", int(defaultCleanupLockTTL/time.Second))) * time.Second,
		},
	}

	if settings.PublicPrefix == "" {
		settings.PublicPrefix = defaultPublicPrefix
	}
	settings.PublicPrefix = "/" + strings.Trim(settings.PublicPrefix, "/")
	if settings.NameAttempts <= 0 {
		settings.NameAttempts = defaultNameAttempts
	}
	if settings.Cleanup.Days < 0 {
		settings.Cleanup.Days = defaultCleanupDays
	}
	if settings.Cleanup.LockTTL <= 0 {
		settings.Cleanup.LockTTL = defaultCleanupLockTTL
	}

	root := filepath.Join(gconfig.S.GetString("cfg_dir"), "storage")
	for _, name := range disk.Names() {
		prefix := "settings.storage.disks." + string(name) + "."
		ds := DiskSettings{
			Driver:    strings.ToLower(strings.TrimSpace(gconfig.S.GetString(prefix + "driver"))),
			Root:      strings.TrimSpace(gconfig.S.GetString(prefix + "root")),
			URL:       strings.TrimSpace(gconfig.S.GetString(prefix + "url")),
			Endpoint:  strings.TrimSpace(gconfig.S.GetString(prefix + "endpoint")),
			AccessKey: strings.TrimSpace(gconfig.S.GetString(prefix + "access_key")),
			SecretKey: strings.TrimSpace(gconfig.S.GetString(prefix + "secret_key")),
			Bucket:    strings.TrimSpace(gconfig.S.GetString(prefix + "bucket")),
			Prefix:    strings.TrimSpace(gconfig.S.GetString(prefix + "prefix")),
			Secure:    boolFromConfig(prefix+"secure", true),
		}
		if ds.Driver == "" {
			ds.Driver = DriverLocal
		}
		if ds.Root == "" {
			ds.Root = filepath.Join(root, string(name))
		}
		if ds.URL == "" {
			ds.URL = settings.PublicPrefix + "/" + string(name)
		}
		settings.Disks[name] = ds
	}

	return settings
}

// OpenDisks builds one backend per configured disk.
func OpenDisks(ctx context.Context, settings Settings) (*disk.Manager, error) {
	disks := make([]disk.Disk, 0, len(settings.Disks))
	for _, name := range disk.Names() {
		ds, ok := settings.Disks[name]
		if !ok {
			continue
		}

		var (
			d   disk.Disk
			err error
		)
		switch ds.Driver {
		case DriverLocal, "":
			d, err = disk.NewLocalDisk(name, ds.Root, ds.URL)
		case DriverMinio:
			d, err = disk.NewMinioDisk(ctx, name, disk.MinioOptions{
				Endpoint:  ds.Endpoint,
				AccessKey: ds.AccessKey,
				SecretKey: ds.SecretKey,
				Bucket:    ds.Bucket,
				Prefix:    ds.Prefix,
				Secure:    ds.Secure,
				BaseURL:   ds.URL,
			})
		default:
			err = errors.Errorf("unsupported driver %q", ds.Driver)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "open disk %q", name)
		}
		disks = append(disks, d)
	}

	return disk.NewManager(disks...)
}

// intFromConfig reads an int configuration value with a default fallback.
func intFromConfig(key string, def int) int {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int
		if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// boolFromConfig reads a boolean configuration value with a default fallback.
func boolFromConfig(key string, def bool) bool {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			return def
		}
	default:
		return def
	}
}
