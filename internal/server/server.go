package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/handler"
	"github.com/dukerupert/meetings/internal/jaas"
	"github.com/dukerupert/meetings/internal/middleware"
	"github.com/dukerupert/meetings/internal/notify"
	"github.com/dukerupert/meetings/internal/push"
	"github.com/dukerupert/meetings/internal/store"
)

// publicBurst is how many rapid requests a client may make before the
// per-minute rate applies.
const publicBurst = 10

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	meetingH    *handler.MeetingHandler
	subscribeH  *handler.SubscribeHandler
	adminH      *handler.AdminHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, passer notify.Passer, pushSvc *push.Service, clk clock.Clock, logger *slog.Logger) *Server {
	if clk == nil {
		clk = clock.Real{}
	}

	meetingStore := store.NewMeetingStore(db)
	subscriberStore := store.NewSubscriberStore(db)
	mailingListStore := store.NewMailingListStore(db)
	pushStore := store.NewPushStore(db)

	issuer := jaas.NewIssuer(jaas.WithClock(clk))

	return &Server{
		db:          db,
		cfg:         cfg,
		meetingH:    handler.NewMeetingHandler(meetingStore, issuer, clk, logger.With("component", "meeting")),
		subscribeH:  handler.NewSubscribeHandler(meetingStore, subscriberStore, mailingListStore, pushStore, pushSvc, logger.With("component", "subscribe")),
		adminH:      handler.NewAdminHandler(meetingStore, subscriberStore, passer, logger.With("component", "admin")),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit, publicBurst),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Public meeting API
	mux.HandleFunc("GET /api/meetings/{id}/next", s.meetingH.Next)
	mux.HandleFunc("POST /api/meetings/{id}/token", s.rateLimitedHandler(s.meetingH.Token))
	mux.HandleFunc("POST /api/meetings/{id}/subscribe", s.rateLimitedHandler(s.subscribeH.Subscribe))
	mux.HandleFunc("POST /api/meetings/{id}/push-subscriptions", s.rateLimitedHandler(s.subscribeH.SubscribePush))
	mux.HandleFunc("GET /api/push/vapid-key", s.subscribeH.VAPIDKey)

	// Admin API, only mounted when credentials are configured
	if s.cfg.AdminEnabled() {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("GET /api/admin/meetings", s.adminH.List)
		adminMux.HandleFunc("PUT /api/admin/meetings/{id}", s.adminH.Put)
		adminMux.HandleFunc("DELETE /api/admin/meetings/{id}", s.adminH.Delete)
		adminMux.HandleFunc("DELETE /api/admin/meetings/{id}/subscribers/{email}", s.adminH.Unsubscribe)
		adminMux.HandleFunc("POST /api/admin/dispatch", s.adminH.Dispatch)

		requireAdmin := middleware.RequireAdmin(s.cfg.AdminUser, []byte(s.cfg.AdminPasswordHash), s.logger.With("component", "admin_auth"))
		mux.Handle("/api/admin/", requireAdmin(adminMux))
	}

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	version, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "schema_version": version})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ClientIP(s.cfg.TrustProxyHeaders))
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
