package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"musicroom/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "musicroom",
		Short:         "MusicRoom playback and playlist service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (json, console)")
	root.PersistentFlags().String("database-url", "", "postgres connection string")
	bindFlag(v, root, "LOG_LEVEL", "log-level")
	bindFlag(v, root, "LOG_FORMAT", "log-format")
	bindFlag(v, root, "DATABASE_URL", "database-url")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(v)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, log)
		},
	}
	serve.Flags().String("port", "", "HTTP port")
	serve.Flags().String("lock-backend", "", "lock backend (redis, local)")
	bindFlag(v, serve, "PORT", "port")
	bindFlag(v, serve, "LOCK_BACKEND", "lock-backend")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(v)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg, log)
		},
	}

	root.AddCommand(serve, migrate)
	return root
}

// bindFlag lets an explicitly set flag override the environment variable key.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func setup(v *viper.Viper) (Config, zerolog.Logger, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return Config{}, zerolog.Nop(), err
	}
	return cfg, newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}

func runMigrate(ctx context.Context, cfg Config, log zerolog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := store.AutoMigrate(ctx, pool); err != nil {
		return err
	}
	log.Info().Msg("migrate: schema is up to date")
	return nil
}
