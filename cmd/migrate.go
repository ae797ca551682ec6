package cmd

import (
	"context"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/spf13/cobra"

	"github.com/Laisky/campus-portal/internal/portal"
	"github.com/Laisky/campus-portal/internal/storage/registry"
	"github.com/Laisky/campus-portal/library/db/sqldb"
	"github.com/Laisky/campus-portal/library/log"
)

var migrateCMD = &cobra.Command{
	Use:     "migrate",
	Short:   "migrate",
	Long:    `migrate db`,
	Args:    gcmd.NoExtraArgs,
	PreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func runMigrate(ctx context.Context) error {
	db, err := sqldb.NewDB(ctx, dialInfoFromConfig())
	if err != nil {
		return errors.Wrap(err, "connect db")
	}

	reg, err := registry.New(db)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = reg.Migrate(ctx); err != nil {
		return errors.WithStack(err)
	}

	dir, err := portal.NewDirectory(db)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = dir.Migrate(ctx); err != nil {
		return errors.WithStack(err)
	}

	log.Logger.Info("migrated file registry and portal tables")
	return nil
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
