package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/email"
	"github.com/dukerupert/meetings/internal/notify"
	"github.com/dukerupert/meetings/internal/push"
	"github.com/dukerupert/meetings/internal/store"
)

// markerBackend is the configured marker store plus its shutdown hook.
type markerBackend struct {
	notify.MarkerStore
	close   func() error
	cleanup func(ctx context.Context) (int64, error)
}

func openMarkers(ctx context.Context, cfg *config.Config, db *sql.DB) (*markerBackend, error) {
	switch cfg.MarkerBackend {
	case config.MarkerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return &markerBackend{MarkerStore: notify.NewRedisMarkers(client), close: client.Close}, nil
	case config.MarkerMemory:
		return &markerBackend{MarkerStore: notify.NewMemoryMarkers(clock.Real{}), close: func() error { return nil }}, nil
	default:
		ms := store.NewMarkerStore(db, clock.Real{})
		return &markerBackend{MarkerStore: ms, close: func() error { return nil }, cleanup: ms.Cleanup}, nil
	}
}

func newPushService(cfg *config.Config) *push.Service {
	return push.NewService(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
	})
}

func newDispatcher(cfg *config.Config, db *sql.DB, markers notify.MarkerStore, pushSvc *push.Service, logger *slog.Logger) *notify.Dispatcher {
	fanoutOpts := []notify.FanoutOption{
		notify.WithRateLimit(cfg.EmailRate),
		notify.WithBaseURL(cfg.BaseURL),
		notify.WithFanoutLogger(logger.With("component", "fanout")),
	}
	if cfg.EmailEnabled() {
		fanoutOpts = append(fanoutOpts, notify.WithEmail(email.NewClient(cfg.PostmarkToken, cfg.FromEmail)))
	} else {
		logger.Warn("email reminders disabled: postmark_token or from_email not set")
	}
	if cfg.PushEnabled() {
		fanoutOpts = append(fanoutOpts, notify.WithPush(pushSvc, store.NewPushStore(db)))
	} else {
		logger.Info("push reminders disabled: vapid keys not set")
	}

	return notify.NewDispatcher(
		store.NewMeetingStore(db),
		store.NewSubscriberStore(db),
		notify.NewFanout(fanoutOpts...),
		markers,
		notify.WithLogger(logger.With("component", "dispatcher")),
	)
}
