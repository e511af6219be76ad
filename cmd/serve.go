package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/RedbringerS/vfs-bot/internal/bot"
	"github.com/RedbringerS/vfs-bot/internal/config"
	"github.com/RedbringerS/vfs-bot/internal/db"
	"github.com/RedbringerS/vfs-bot/internal/ops"
	"github.com/RedbringerS/vfs-bot/internal/portal"
	"github.com/RedbringerS/vfs-bot/internal/scheduler"
	"github.com/RedbringerS/vfs-bot/internal/session"
	"github.com/RedbringerS/vfs-bot/internal/store"
	"github.com/RedbringerS/vfs-bot/internal/telegram"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: update poller, per-user slot polling and ops endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			st := store.New(d)
			if migrateUp {
				if err := st.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

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

			tg := telegram.New(cfg.Telegram.Token, cfg.Telegram.APIURL)
			notifier := scheduler.NotifyFunc(func(ctx context.Context, userID int64, text string) error {
				_, err := tg.SendMessage(ctx, userID, text, nil)
				return err
			})

			sessions := session.NewStore()
			sched := scheduler.New(driver, st, notifier, sessions, cfg.Scheduler.Interval, logger.With("component", "scheduler"))
			handlers := bot.New(tg, st, driver, sched, sessions, logger.With("component", "bot"))
			poller := &telegram.Poller{Client: tg, Handler: handlers, Log: logger.With("component", "telegram")}

			opsSrv := &ops.Server{DB: d, Results: st, Log: logger.With("component", "ops")}
			httpSrv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: opsSrv.Routes()}

			logger.Info("starting", "http_addr", cfg.Server.HTTPAddr, "interval", cfg.Scheduler.Interval)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return poller.Run(ctx)
			})
			g.Go(func() error {
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				return httpSrv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			sched.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
