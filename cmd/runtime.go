package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/portal"
	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/access"
	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/storage/registry"
	rlib "github.com/Laisky/campus-portal/library/db/redis"
	"github.com/Laisky/campus-portal/library/db/sqldb"
	"github.com/Laisky/campus-portal/library/log"
)

// reportTTL is how long redis keeps the last sweep report of a disk.
const reportTTL = 30 * 24 * time.Hour

// runtime holds the wired storage core shared by every subcommand.
type runtime struct {
	db        *gorm.DB
	settings  storage.Settings
	registry  *registry.Registry
	directory *portal.Directory
	storage   *storage.Service
	gate      *access.Gate
	job       *cleanup.Job
	deleter   *portal.Deleter
	media     *portal.Media
}

// dialInfoFromConfig reads the settings.db section.
func dialInfoFromConfig() sqldb.DialInfo {
	return sqldb.DialInfo{
		Type:       gconfig.S.GetString("settings.db.type"),
		Addr:       gconfig.S.GetString("settings.db.addr"),
		DBName:     gconfig.S.GetString("settings.db.db"),
		User:       gconfig.S.GetString("settings.db.user"),
		Pwd:        gconfig.S.GetString("settings.db.pwd"),
		Port:       gconfig.S.GetInt("settings.db.port"),
		SQLitePath: gconfig.S.GetString("settings.db.sqlite_path"),
		Debug:      gconfig.S.GetBool("debug"),
	}
}

func newRuntime(ctx context.Context) (*runtime, error) {
	db, err := sqldb.NewDB(ctx, dialInfoFromConfig())
	if err != nil {
		return nil, errors.Wrap(err, "connect db")
	}

	locker, reports, err := newCleanupBackends(ctx)
	if err != nil {
		return nil, err
	}

	return buildRuntime(ctx, db, storage.LoadSettingsFromConfig(), locker, reports)
}

// buildRuntime wires the storage core on db.
func buildRuntime(ctx context.Context, db *gorm.DB, settings storage.Settings,
	locker cleanup.Locker, reports cleanup.ReportStore) (*runtime, error) {
	rt := &runtime{db: db, settings: settings}

	var err error
	if rt.registry, err = registry.New(db); err != nil {
		return nil, errors.Wrap(err, "new file registry")
	}
	if rt.directory, err = portal.NewDirectory(db); err != nil {
		return nil, errors.Wrap(err, "new portal directory")
	}

	disks, err := storage.OpenDisks(ctx, settings)
	if err != nil {
		return nil, errors.Wrap(err, "open disks")
	}
	if rt.storage, err = storage.NewService(disks, rt.registry, rt.directory, settings,
		log.Logger.Named("storage"), nil); err != nil {
		return nil, errors.Wrap(err, "new storage service")
	}
	if rt.gate, err = access.NewGate(rt.registry, rt.directory, log.Logger.Named("storage_access")); err != nil {
		return nil, errors.Wrap(err, "new access gate")
	}
	if rt.job, err = cleanup.NewJob(rt.storage, locker, reports, settings.Cleanup.LockTTL,
		log.Logger.Named("storage_cleanup"), nil); err != nil {
		return nil, errors.Wrap(err, "new cleanup job")
	}
	if rt.deleter, err = portal.NewDeleter(db, rt.storage, rt.registry, log.Logger.Named("portal")); err != nil {
		return nil, errors.Wrap(err, "new entity deleter")
	}
	if rt.media, err = portal.NewMedia(db, rt.storage); err != nil {
		return nil, errors.Wrap(err, "new entity media")
	}

	return rt, nil
}

// newCleanupBackends uses redis for the sweep lock and reports when
// settings.redis.addr is set, and process memory otherwise.
func newCleanupBackends(ctx context.Context) (cleanup.Locker, cleanup.ReportStore, error) {
	addr := strings.TrimSpace(gconfig.S.GetString("settings.redis.addr"))
	if addr == "" {
		log.Logger.Info("redis not configured, sweep lock is process local")
		return cleanup.NewMemoryLocker(), cleanup.NewMemoryReportStore(), nil
	}

	rdb := rlib.NewDB(&redis.Options{
		Addr:     addr,
		Password: gconfig.S.GetString("settings.redis.pwd"),
		DB:       gconfig.S.GetInt("settings.redis.db"),
	})
	if err := rdb.Ping(ctx); err != nil {
		return nil, nil, errors.Wrapf(err, "ping redis %s", addr)
	}

	log.Logger.Info("use redis for sweep lock and reports", zap.String("addr", addr))
	return rdb, cleanup.NewRedisReportStore(rdb, reportTTL), nil
}
