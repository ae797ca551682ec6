package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/spf13/cobra"

	"github.com/Laisky/campus-portal/internal/storage/cleanup"
	"github.com/Laisky/campus-portal/internal/web"
	"github.com/Laisky/campus-portal/library/jwt"
	"github.com/Laisky/campus-portal/library/log"
	"github.com/Laisky/campus-portal/library/throttle"
)

var apiCMD = &cobra.Command{
	Use:     "api",
	Short:   "api",
	Long:    `HTTP API serving, uploading and cleaning up portal files`,
	Args:    gcmd.NoExtraArgs,
	PreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runAPI(ctx)
	},
}

func runAPI(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	tokens, err := jwt.New([]byte(gconfig.S.GetString("settings.secret")))
	if err != nil {
		return errors.Wrap(err, "new jwt")
	}
	files, err := web.NewFilesController(rt.storage, rt.gate)
	if err != nil {
		return errors.Wrap(err, "new files controller")
	}
	admin, err := web.NewAdminController(rt.storage, rt.job, rt.settings.Cleanup.Days)
	if err != nil {
		return errors.Wrap(err, "new admin controller")
	}
	entities, err := web.NewEntitiesController(rt.deleter, rt.media)
	if err != nil {
		return errors.Wrap(err, "new entities controller")
	}

	uploads, err := newUploadThrottle()
	if err != nil {
		return err
	}

	router, err := web.NewRouter(web.RouterOptions{
		Files:          files,
		Admin:          admin,
		Entities:       entities,
		UploadThrottle: uploads,
		Tokens:         tokens,
		CORSDomains:    gconfig.S.GetStringSlice("settings.web.cors_domains"),
		Logger:         log.Logger.Named("gin"),
	})
	if err != nil {
		return errors.Wrap(err, "new router")
	}

	if spec := rt.settings.Cleanup.Schedule; spec != "" {
		scheduler, err := cleanup.NewScheduler(rt.job, spec, rt.storage.Disks().Names(), rt.settings.Cleanup.Days)
		if err != nil {
			return errors.Wrap(err, "new cleanup scheduler")
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	return web.RunServer(ctx, gconfig.Shared.GetString("listen"), router)
}

// newUploadThrottle reads settings.web.upload_throttle, nil when unset.
func newUploadThrottle() (*throttle.Throttle, error) {
	prefix := "settings.web.upload_throttle."
	cfg := throttle.Config{
		TotalNPerSec:   gconfig.S.GetInt(prefix + "total_per_sec"),
		TotalBurst:     gconfig.S.GetInt(prefix + "total_burst"),
		EachKeyNPerSec: gconfig.S.GetInt(prefix + "user_per_sec"),
		EachKeyBurst:   gconfig.S.GetInt(prefix + "user_burst"),
	}
	if cfg.TotalNPerSec <= 0 && cfg.EachKeyNPerSec <= 0 {
		return nil, nil
	}

	th, err := throttle.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new upload throttle")
	}
	return th, nil
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
