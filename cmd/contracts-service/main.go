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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/nurpe/contracts-service/internal/cache"
	"github.com/nurpe/contracts-service/internal/config"
	"github.com/nurpe/contracts-service/internal/db"
	"github.com/nurpe/contracts-service/internal/excel"
	httphandler "github.com/nurpe/contracts-service/internal/http"
	"github.com/nurpe/contracts-service/internal/logger"
	"github.com/nurpe/contracts-service/internal/pdf"
	"github.com/nurpe/contracts-service/internal/repository"
	"github.com/nurpe/contracts-service/internal/service"
	"github.com/nurpe/contracts-service/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "contracts-service",
	Short:        "Contract records API with file attachments",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, log)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.Migrate(cfg.DB); err != nil {
			return err
		}
		version, dirty, err := db.Version(cfg.DB)
		if err != nil {
			return err
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema is up to date")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stored attachments no contract references",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if grace, _ := cmd.Flags().GetDuration("grace"); grace > 0 {
			cfg.Sweep.Grace = grace
		}

		ctx := cmd.Context()
		database, err := db.New(cfg, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer closeDatabase(database, log)

		files, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init attachment storage: %w", err)
		}

		sweeper := service.NewSweeper(repository.NewContractRepository(database), files, cfg.Sweep.Grace, log)
		result, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, removed %d, failed %d\n", result.Scanned, result.Removed, result.Failed)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Duration("grace", 0, "Only remove files older than this (default ATTACHMENTS_SWEEP_GRACE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.Environment), nil
}

func serve(parent context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeDatabase(database, log)

	files, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init attachment storage: %w", err)
	}

	repo := repository.NewContractRepository(database)
	rdb := cache.Connect(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}
	contracts := service.NewContractService(cache.Wrap(repo, rdb, cfg.Redis.CacheTTL, log), files, excel.NewGenerator(), pdf.NewGenerator(), log)

	handler := httphandler.NewHandler(contracts, cfg, log)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httphandler.NewRouter(handler, cfg.HTTP.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("storage", cfg.Storage.Type).Msg("starting contracts service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down contracts service")
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Sweep.Interval > 0 {
		// The sweeper reads records past the cache.
		sweeper := service.NewSweeper(repo, files, cfg.Sweep.Grace, log)
		g.Go(func() error {
			return sweeper.Run(gctx, cfg.Sweep.Interval)
		})
	}

	return g.Wait()
}

func closeDatabase(database *gorm.DB, log zerolog.Logger) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}
