package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/app"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/config"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/log"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var overrides config.Config

	root := &cobra.Command{
		Use:          "chat-server",
		Short:        "Room-scoped real-time chat server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	root.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	loadConfig := func() (config.Config, error) {
		bootLogger := log.New("info")
		cfg, path, err := config.Load(bootLogger, configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg.UpdateFrom(overrides)
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting chat server")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), cfg, func(ctx context.Context, st *sqlite.SQLiteStore) error {
				return st.Migrate(ctx)
			})
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Apply the schema and create the default rooms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), cfg, func(ctx context.Context, st *sqlite.SQLiteStore) error {
				if err := st.Migrate(ctx); err != nil {
					return err
				}
				return st.Seed(ctx)
			})
		},
	}

	root.AddCommand(serve, migrate, seed)
	return root
}

func withStore(ctx context.Context, cfg config.Config, fn func(context.Context, *sqlite.SQLiteStore) error) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return fn(ctx, st)
}
