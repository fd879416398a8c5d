package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medbook/booking/internal/config"
	"github.com/medbook/booking/internal/domain/scheduling"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/middleware"
	"github.com/medbook/booking/internal/platform/telemetry"
	"github.com/medbook/booking/internal/platform/validate"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "booking-server",
		Short: "Appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir := migrationsDir(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) from %s.\n", count, dir)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// statusesCmd prints the appointment status catalog with the transitions
// allowed out of each status.
func statusesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "Show the appointment status catalog and its transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			offline, _ := cmd.Flags().GetBool("offline")
			if offline {
				printStatuses(os.Stdout, scheduling.DefaultCatalog())
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, err := scheduling.NewReferenceRepoPG(pool).ListStatuses(ctx)
			if err != nil {
				return fmt.Errorf("failed to load status catalog: %w", err)
			}
			printStatuses(os.Stdout, entries)
			return scheduling.VerifyCatalog(entries)
		},
	}
	cmd.Flags().Bool("offline", false, "Print the built-in catalog without connecting to the database")
	return cmd
}

func printStatuses(w io.Writer, entries []*scheduling.StatusEntry) {
	fmt.Fprintf(w, "%-4s %-18s %-18s %-6s %s\n", "ID", "SLUG", "NAME", "FINAL", "ALLOWED NEXT")
	for _, e := range entries {
		targets := scheduling.AllowedTargets(scheduling.Status(e.Slug))
		next := make([]string, len(targets))
		for i, t := range targets {
			next[i] = string(t)
		}
		allowed := strings.Join(next, ", ")
		if allowed == "" {
			allowed = "-"
		}
		fmt.Fprintf(w, "%-4d %-18s %-18s %-6t %s\n", e.ID, e.Slug, e.Name, e.IsFinal, allowed)
	}
}

// newLogger writes human-readable lines in development and JSON elsewhere.
// Production drops debug events.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	switch {
	case cfg.IsDev():
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	case cfg.IsProduction():
		return zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// newServer builds the echo instance with middleware, health and domain
// routes. dbHealth and metrics may be nil.
func newServer(cfg *config.Config, svc *scheduling.Service, logger zerolog.Logger, dbHealth echo.HandlerFunc, metrics *telemetry.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}
	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(cfg.RequestTimeout))
	fhirGroup := e.Group("/fhir", middleware.RequestTimeout(cfg.RequestTimeout))
	scheduling.NewHandler(svc).RegisterRoutes(apiV1, fhirGroup)

	return e
}

func runServer() error {
	// Config, read before the logger so ENV from .env picks the format
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var metrics *telemetry.Provider
	opts := scheduling.Options{
		AllowPastDates:     cfg.AllowPastDates,
		DefaultCancelledBy: cfg.DefaultCancelledBy,
	}
	if cfg.MetricsEnabled {
		metrics = telemetry.New(telemetry.Config{
			ServiceVersion:    version,
			Environment:       cfg.Env,
			RuntimeCollectors: true,
		})
		opts.Metrics = metrics
	}

	svc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewReferenceRepoPG(pool),
		scheduling.SystemClock{},
		opts,
		logger,
	)

	// A missing catalog entry fails every booking, so surface it at startup.
	if err := svc.CheckCatalog(ctx); err != nil {
		logger.Error().Err(err).Msg("appointment status catalog check failed, run migrations")
	}

	dbHealth := db.HealthHandler(pool, db.Check{Name: "status_catalog", Run: svc.CheckCatalog})
	e := newServer(cfg, svc, logger, dbHealth, metrics)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("allow_past_dates", cfg.AllowPastDates).Msg("starting server")
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
	logger.Info().Msg("server stopped")
	return nil
}
