package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/middleware"
	"github.com/dukerupert/meetings/internal/notify"
	"github.com/dukerupert/meetings/internal/server"
	"github.com/dukerupert/meetings/internal/store"
)

const cleanupInterval = 10 * time.Minute

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts.Config, rootOpts.Logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	meetings := store.NewMeetingStore(db)
	if cfg.SeedFile != "" {
		if err := seedFrom(ctx, meetings, cfg.SeedFile, logger); err != nil {
			return err
		}
		if cfg.WatchSeed {
			seedLogger := logger.With("component", "seed")
			err := config.WatchSeed(ctx, cfg.SeedFile, seedLogger, func(s *config.Seed) {
				applied, err := config.ApplySeed(ctx, meetings, s)
				if err != nil {
					seedLogger.Warn("seed reload had invalid meetings", "error", err)
				}
				seedLogger.Info("seed reloaded", "applied", applied)
			})
			if err != nil {
				return err
			}
		}
	}

	markers, err := openMarkers(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer markers.close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	pushSvc := newPushService(cfg)
	dispatcher := newDispatcher(cfg, db, markers, pushSvc, logger)

	runner, err := notify.NewRunner(dispatcher, cfg.DispatchSchedule, loc, logger.With("component", "runner"))
	if err != nil {
		return err
	}
	runner.Start(ctx, cfg.DispatchOnStart)
	defer runner.Stop()
	logger.Info("reminder scheduler started", "schedule", cfg.DispatchSchedule, "next", runner.Next(), "markers", cfg.MarkerBackend)

	srv := server.New(db, cfg, dispatcher, pushSvc, clock.Real{}, logger)
	go runCleanup(ctx, srv.RateLimiter(), markers, logger.With("component", "cleanup"))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("meetings running", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// runCleanup periodically drops idle rate-limit buckets and expired markers.
func runCleanup(ctx context.Context, rl *middleware.RateLimiter, markers *markerBackend, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(cleanupInterval)
			if markers.cleanup == nil {
				continue
			}
			n, err := markers.cleanup(ctx)
			if err != nil {
				logger.Error("marker cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired markers removed", "count", n)
			}
		}
	}
}
