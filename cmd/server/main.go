package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"climax/internal/auth"
	"climax/internal/config"
	"climax/internal/game"
	"climax/internal/game/climax"
	"climax/internal/realtime"
	"climax/internal/server"
	"climax/internal/session"
	"climax/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer store.Close()

	// Finished games always land in the local store; Postgres is an
	// additional sink and, when set, serves the history endpoints.
	sinks := []storage.HistorySink{store}
	var history storage.History = store
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresHistory(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
		history = pg
		log.Info("recording history to postgres")
	}

	var broker realtime.Broker = realtime.NewMemoryBroker()
	if cfg.RedisURL != "" {
		rb, err := realtime.NewRedisBroker(ctx, cfg.RedisURL, 2*cfg.SessionMaxAge)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		broker = rb
		log.Info("publishing snapshots to redis")
	}
	defer broker.Close()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; seat tokens will not survive a restart")
	}

	registry := game.NewRegistry()
	for _, g := range []*climax.Game{climax.Standard(), climax.Open()} {
		g.RoundEndDelay = cfg.RoundEndDelay
		g.AIDelayScale = cfg.AIDelayScale
		registry.Register(g)
	}

	mgr := session.NewManager(registry, store, session.Options{
		Broker:  broker,
		History: sinks,
		Logger:  log,
		AIName:  climax.AIName,
	})
	defer mgr.Close()
	if err := mgr.Restore(ctx); err != nil {
		log.WithError(err).Warn("restore sessions")
	}

	go mgr.CleanupLoop(ctx, cfg.CleanupInterval, cfg.SessionMaxAge)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(registry, mgr, issuer, history, log),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithField("addr", httpSrv.Addr).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
