// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/handler"
	"github.com/Shivanand-hulikatti/event-admission/internal/ledger"
	"github.com/Shivanand-hulikatti/event-admission/internal/lock"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// storage is everything the services need from a persistence backend.
type storage interface {
	repository.Store
	repository.SlotCounter
	repository.Catalog
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(cfg)

	// ── 1. Storage ────────────────────────────────────────────────────────
	var store storage
	switch cfg.Store {
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Info("connected to PostgreSQL")
		store = repository.NewPostgresStore(pool)
	default:
		log.Warn("using in-memory store; state is lost on restart")
		store = repository.NewMemoryStore()
	}

	// ── 2. Coordination and side channels ─────────────────────────────────
	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.Notify.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		log.Info("connected to Redis")
	}

	var locks lock.Locker = lock.NewLocal()
	if cfg.LockBackend == "redis" {
		locks = lock.NewRedis(rdb, "admission:lock:", cfg.LockTTL)
	}

	notifier, closeNotifier, err := newNotifier(cfg.Notify, rdb)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	defer closeNotifier.Close()

	processor := payment.NewSimulated(cfg.Settlement)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	now := service.SystemClock
	slots := ledger.New(store)
	registrations := service.NewRegistrationService(store, store, slots, locks, now)
	lifecycle := service.NewEventLifecycle(store, registrations, locks, notifier, cfg.Notify.Timeout, now)
	settlement := service.NewSettlement(store, store, registrations, processor, locks, cfg.Settlement.Timeout, now)
	catalog := service.NewEventCatalog(store, store, slots, now)
	h := handler.New(catalog, registrations, lifecycle, settlement)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	h.Routes(r)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Settlement.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server listening on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	lifecycle.Wait()
	log.Info("server stopped")
}

func setupLogging(cfg config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newNotifier selects the notification backend. The returned closer flushes
// it on shutdown.
func newNotifier(cfg config.Notify, rdb *redis.Client) (notify.Notifier, io.Closer, error) {
	switch cfg.Backend {
	case "redis":
		return notify.NewRedis(rdb, cfg.Channel), nopCloser{}, nil
	case "kafka":
		k, err := notify.NewKafka(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, nil, err
		}
		return k, k, nil
	default:
		return notify.Log{}, nopCloser{}, nil
	}
}
