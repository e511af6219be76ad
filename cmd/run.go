package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RedbringerS/vfs-bot/internal/config"
	"github.com/RedbringerS/vfs-bot/internal/db"
	"github.com/RedbringerS/vfs-bot/internal/portal"
	"github.com/RedbringerS/vfs-bot/internal/store"
)

func newRunCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one automation run for a user and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging.Level)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer d.Close()

			st := store.New(d)
			driver, err := portal.NewClient(portal.Options{
				BaseURL:     cfg.Portal.URL,
				Email:       cfg.Portal.Email,
				Password:    cfg.Portal.Password,
				SnapshotDir: cfg.Portal.SnapshotDir,
				RunTimeout:  cfg.Scheduler.RunTimeout,
			}, st, logger.With("component", "portal"))
			if err != nil {
				return err
			}

			out := driver.Run(ctx, userID)
			fmt.Println(out.Message)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id to record the run under")
	return cmd
}
