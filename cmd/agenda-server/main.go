package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marvingbh/clinica-sub001/internal/config"
	"github.com/marvingbh/clinica-sub001/internal/domain/agenda"
	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
	"github.com/marvingbh/clinica-sub001/internal/domain/availability"
	"github.com/marvingbh/clinica-sub001/internal/domain/groupsession"
	"github.com/marvingbh/clinica-sub001/internal/platform/auth"
	"github.com/marvingbh/clinica-sub001/internal/platform/cache"
	"github.com/marvingbh/clinica-sub001/internal/platform/db"
	"github.com/marvingbh/clinica-sub001/internal/platform/middleware"
	"github.com/marvingbh/clinica-sub001/internal/platform/sandbox"
	"github.com/marvingbh/clinica-sub001/internal/platform/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agenda-server",
		Short: "Clinic scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

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

			// Seeding writes straight through; no cache to invalidate yet.
			noCache, err := cache.New("", 0, logger)
			if err != nil {
				return err
			}
			availSvc, apptSvc, _ := buildServices(pool, noCache, logger)
			seeder := sandbox.NewSeeder(pool, availSvc, apptSvc, logger)
			result, err := seeder.Seed(ctx, sandbox.DefaultSeedConfig())
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Printf("Seeded %d professionals, %d patients, %d rules, %d appointments, %d series.\n",
				result.Professionals, result.Patients, result.Rules, result.Appointments, result.Series)
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background worker (recurrence horizon extension)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required to run the worker")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			gridCache, err := cache.New(cfg.RedisURL, time.Duration(cfg.GridCacheTTLSeconds)*time.Second, logger)
			if err != nil {
				return err
			}
			defer gridCache.Close()

			_, apptSvc, _ := buildServices(pool, gridCache, logger)
			w, err := worker.New(cfg.RedisURL, cfg.HorizonIntervalDays, apptSvc, logger)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
}

// buildServices wires the domain services on top of a pool.
func buildServices(pool *pgxpool.Pool, gridCache *cache.Cache, logger zerolog.Logger) (*availability.Service, *appointment.Service, *groupsession.Service) {
	ruleRepo := availability.NewRuleRepoPG(pool)
	excRepo := availability.NewExceptionRepoPG(pool)
	availSvc := availability.NewService(ruleRepo, excRepo, gridCache, logger)

	apptRepo := appointment.NewRepoPG(pool)
	recurRepo := appointment.NewRecurrenceRepoPG(pool)
	apptSvc := appointment.NewService(apptRepo, recurRepo, gridCache, logger)

	sessionRepo := groupsession.NewSessionRepoPG(pool)
	seriesRepo := groupsession.NewSeriesRepoPG(pool)
	groupSvc := groupsession.NewService(sessionRepo, seriesRepo, logger)

	return availSvc, apptSvc, groupSvc
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	gridCache, err := cache.New(cfg.RedisURL, time.Duration(cfg.GridCacheTTLSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer gridCache.Close()
	if gridCache.Enabled() {
		logger.Info().Msg("day-grid cache enabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	e.Use(db.ConnMiddleware(pool))

	e.GET("/health", db.HealthHandler(pool))

	availSvc, apptSvc, groupSvc := buildServices(pool, gridCache, logger)
	agendaSvc := agenda.NewService(availSvc, apptSvc, gridCache, cfg.SlotDurationMinutes, logger)

	api := e.Group("/api/v1")
	availability.NewHandler(availSvc).RegisterRoutes(api)
	appointment.NewHandler(apptSvc).RegisterRoutes(api)
	agenda.NewHandler(agendaSvc).RegisterRoutes(api)
	groupsession.NewHandler(groupSvc).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
