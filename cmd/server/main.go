package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"certflow/internal/address"
	"certflow/internal/checkout/handler"
	"certflow/internal/checkout/service"
	"certflow/internal/checkout/store"
	"certflow/internal/identity"
	"certflow/internal/intake"
	"certflow/internal/payment"
	"certflow/internal/platform/config"
	"certflow/internal/platform/httpserver"
	"certflow/internal/platform/logger"
	"certflow/internal/platform/metrics"
	"certflow/internal/platform/middleware"
	platformredis "certflow/internal/platform/redis"
	"certflow/internal/protocol"
	"certflow/internal/sessiontoken"
)

const sessionTokenTTL = 2 * time.Hour

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	log := logger.New()
	cfg := config.FromEnv()
	m := metrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	snapshots, db, err := buildSnapshotStore(cfg, redisClient)
	if err != nil {
		log.Error("snapshot store setup failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	intakeClient, err := intake.NewMockClient(cfg.Intake.BaseURL, []byte(cfg.Intake.SigningKey))
	if err != nil {
		log.Error("intake client setup failed", "error", err)
		os.Exit(1)
	}

	sessions, err := service.NewRegistry(service.Deps{
		Cfg:       cfg,
		Store:     snapshots,
		Biometric: identity.NewMockBiometricClient(),
		Registry:  identity.NewMockRegistryClient(),
		Issuer:    protocol.NewMockIssuerClient(),
		Provider:  payment.NewMockProviderClient(),
		Intake:    intakeClient,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		log.Error("session registry setup failed", "error", err)
		os.Exit(1)
	}

	tokens := sessiontoken.New(cfg.JWTSigningKey, sessionTokenTTL)
	h, err := handler.New(sessions, tokens, address.NewMockClient(), log)
	if err != nil {
		log.Error("handler setup failed", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.DeviceClass)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m.RequestLatency))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthz(redisClient, db))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certflow checkout", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Stop accepting requests first, then flush live sessions so polling
		// loops end and snapshots hit the store.
		err := srv.Shutdown(shutdownCtx)
		sessions.Shutdown(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildSnapshotStore picks the snapshot backend: redis when configured,
// postgres as the durable alternative, in-memory otherwise.
func buildSnapshotStore(cfg config.Config, redisClient *platformredis.Client) (store.Store, *sql.DB, error) {
	cipher, err := store.NewCipher(cfg.Snapshot.Secret)
	if err != nil {
		return nil, nil, err
	}

	if redisClient != nil {
		st, err := store.NewRedisStore(redisClient.Client, cipher, cfg.Snapshot.TTL)
		return st, nil, err
	}

	if cfg.Snapshot.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.Snapshot.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		st, err := store.NewPostgresStore(db, cipher, cfg.Snapshot.TTL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db, nil
	}

	return store.NewMemoryStore(cipher, cfg.Snapshot.TTL), nil, nil
}

func healthz(redisClient *platformredis.Client, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
