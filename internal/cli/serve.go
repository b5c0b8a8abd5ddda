package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/optiview/adminrelay/internal/admin"
	"github.com/optiview/adminrelay/internal/cache"
	"github.com/optiview/adminrelay/internal/engine"
	"github.com/optiview/adminrelay/internal/events"
	"github.com/optiview/adminrelay/internal/quota"
	"github.com/optiview/adminrelay/internal/ratelimit"
	"github.com/optiview/adminrelay/internal/scheduler"
	"github.com/optiview/adminrelay/internal/server"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the adminrelay HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := gorm.Open(sqlite.Open(cfg.Storage.SQLitePath), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return fmt.Errorf("open ledger database: %w", err)
			}
			ledger, err := quota.NewLedger(db)
			if err != nil {
				return err
			}

			store, err := cache.Open(cache.Options{Path: cfg.Storage.CachePath}, logger)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn().Err(err).Msg("cache close failed")
				}
			}()

			bus := events.NewEventBus(64)
			defer bus.Close()
			gateway := cache.NewGateway(store, bus, logger)

			limiters := ratelimit.NewStore(cfg.RateLimit.TokensPerSecond, cfg.RateLimit.Burst)
			sched := scheduler.New(cfg.Scheduler.MaxInFlight)

			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken})
			client, err := admin.NewClient(cfg, ts, logger)
			if err != nil {
				return fmt.Errorf("build admin client: %w", err)
			}

			eng := engine.New(client, ledger, limiters, sched, gateway, cfg, logger)
			return server.New(cfg, eng, logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	return cmd
}
