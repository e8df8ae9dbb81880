package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/config"
	"github.com/lyfcircle/circle/internal/identity"
	"github.com/lyfcircle/circle/internal/logging"
	"github.com/lyfcircle/circle/internal/messaging"
	"github.com/lyfcircle/circle/internal/metrics"
	"github.com/lyfcircle/circle/internal/ratelimit"
)

// app is the wiring shared by every command: settings, the root logger and
// the session identity.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	ident *identity.Context
	// redis is set when identities live in Redis.
	redis *redis.Client

	closers []func()
}

// newApp loads settings, builds the logger and opens the identity store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg: cfg,
		log: logging.Stderr(cfg.LogLevel, cfg.LogFormat),
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	ident, err := identity.Open(ctx, store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ident = ident

	a.startMetrics()
	return a, nil
}

func (a *app) openStore() (identity.Store, error) {
	switch a.cfg.IdentityStore {
	case config.IdentityRedis:
		rs, err := identity.NewRedisStore(a.cfg.RedisAddr, a.cfg.Profile)
		if err != nil {
			return nil, err
		}
		a.redis = rs.Client()
		a.closers = append(a.closers, func() { rs.Close() })
		a.log.Debug().Str("addr", a.cfg.RedisAddr).Str("profile", a.cfg.Profile).Msg("using redis identity store")
		return rs, nil
	default:
		a.log.Debug().Str("path", a.cfg.IdentityPath).Msg("using file identity store")
		return identity.NewFileStore(a.cfg.IdentityPath), nil
	}
}

// startMetrics serves Prometheus metrics when CIRCLE_METRICS_ADDR is set.
func (a *app) startMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := logging.Component(a.log, "metrics")
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
}

// bus connects to NATS_URL. It returns nil when NATS is not configured.
func (a *app) bus() (*messaging.Bus, error) {
	if a.cfg.NATSURL == "" {
		return nil, nil
	}
	b, err := messaging.Connect(messaging.DefaultBusConfig(a.cfg.NATSURL), logging.Component(a.log, "nats"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, b.Close)
	return b, nil
}

// sendLimiter shares the chat send window through Redis when identities
// live there, and keeps it in memory otherwise.
func (a *app) sendLimiter() ratelimit.Limiter {
	if a.redis != nil {
		return ratelimit.NewRedisLimiter(a.redis, ratelimit.RuleChatSend, logging.Component(a.log, "ratelimit"))
	}
	return ratelimit.NewLocalLimiter(ratelimit.RuleChatSend)
}

// Close releases everything the app opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) requireUser() (string, error) {
	id, err := a.ident.Require()
	if errors.Is(err, identity.ErrNoIdentity) {
		return "", fmt.Errorf("not registered yet, run 'circle register' first")
	}
	return id, err
}
