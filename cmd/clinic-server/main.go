package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/limamedic/clinic/internal/config"
	"github.com/limamedic/clinic/internal/platform/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "LimaMedic appointment booking server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(storeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the SQL backends",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Create the tabular_rows table on postgres or mysql",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != config.BackendPostgres && cfg.StoreBackend != config.BackendMySQL {
				fmt.Printf("Backend %q needs no migration.\n", cfg.StoreBackend)
				return nil
			}

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			fmt.Printf("Migrating %s backend\n", cfg.StoreBackend)
			if err := b.migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Migration applied successfully.")
			return nil
		},
	}
	cmd.AddCommand(upCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add the default doctor roster when missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()
			if err := b.migrate(ctx); err != nil {
				return err
			}

			added, err := seedDoctors(ctx, newIdentityService(b.store), defaultDoctors)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d doctor(s).\n", added)
			return nil
		},
	}
}

func storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the configured store",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Ping the store and count rows per table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			if !checkStore(ctx, cmd.OutOrStdout(), cfg.StoreBackend, b.store) {
				return errors.New("store check failed")
			}
			return nil
		},
	}
	cmd.AddCommand(checkCmd)
	return cmd
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer b.close()
	if err := b.migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare store")
	}
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	sessions, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeSessions()

	a, err := newApp(ctx, cfg, logger, b, sessions)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	e := a.server()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	if n := a.store.Pending(); n > 0 {
		if err := a.store.Flush(shutdownCtx); err != nil {
			logger.Error().Err(err).Int("pending", a.store.Pending()).Msg("buffered rows lost on shutdown")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openSessionStore returns the configured session store and a close func.
// The in-memory store is swept of expired sessions every minute.
func openSessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session.Store, func(), error) {
	if cfg.SessionBackend == config.SessionRedis {
		rs, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}

	ms := session.NewMemoryStore()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := ms.Sweep(); n > 0 {
					logger.Debug().Int("expired", n).Msg("swept sessions")
				}
			case <-done:
				return
			}
		}
	}()
	return ms, func() { close(done) }, nil
}
