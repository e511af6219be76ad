package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RedbringerS/vfs-bot/internal/config"
	"github.com/RedbringerS/vfs-bot/internal/db"
	"github.com/RedbringerS/vfs-bot/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Logging.Level)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer d.Close()

			return store.New(d).Migrate(ctx)
		},
	}
}
