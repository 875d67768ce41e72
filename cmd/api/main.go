package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/care-access/internal/app"
	"github.com/jwalitptl/care-access/internal/config"
	"github.com/jwalitptl/care-access/internal/migrations"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/internal/repository/postgres"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "care-access",
		Short:         "Consent and time-bound access control API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.Setup(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.Format == "json",
		Service:    "care-access-api",
	})
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	var stores app.Stores
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory storage; data is lost on exit")
		stores = app.MemoryStores(memory.NewRepositories())
	default:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		stores = app.PostgresStores(db)
	}

	a, err := app.New(cfg, stores, clock.Real{})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.Router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited properly")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), func(m *migrations.Manager) error {
				return m.Up()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all when steps is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrations(cmd.Context(), func(m *migrations.Manager) error {
				return m.Down(steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), func(m *migrations.Manager) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withMigrations(ctx context.Context, fn func(*migrations.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		return errors.New("migrations require database.driver postgres")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(migrations.NewManager(db.DB))
}
