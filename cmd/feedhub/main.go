package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"feedhub/internal/api"
	"feedhub/internal/auth"
	"feedhub/internal/config"
	"feedhub/internal/curation"
	"feedhub/internal/feed"
	"feedhub/internal/hub"
	"feedhub/internal/metrics"
	"feedhub/internal/platform/logger"
	"feedhub/internal/signals"
	"feedhub/internal/store"
	"feedhub/internal/ws"
)

// application owns every component and tears them down in reverse order.
type application struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *store.SQLiteStore
	hub    *hub.Manager
	server *http.Server
}

func newApplication(cfg *config.Config, log zerolog.Logger) (*application, error) {
	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	m := metrics.New()

	provider := signals.NewProvider(st, cfg.ContextTTL, cfg.ContextGrace, log)
	provider.SetObserver(m)

	scorer := curation.NewScorer(curation.Weights{
		Recency:         cfg.RecencyWeight,
		Social:          cfg.SocialWeight,
		Affinity:        cfg.AffinityWeight,
		Engagement:      cfg.EngagementWeight,
		RecencyHalfLife: cfg.RecencyHalfLife,
		SocialBaseline:  cfg.SocialBaseline,
	})
	feeds := curation.NewService(st, provider, scorer, cfg.CandidatePool, log)
	feeds.SetObserver(m)

	h := hub.NewManager(cfg.MaxSessions, log)
	h.SetObserver(m)

	authn := auth.New(cfg.AuthSecret)
	adapter := feed.NewAdapter(h, feeds, st, provider, cfg.DefaultLimit, log)
	adapter.SetObserver(m)
	wsHandler := ws.NewHandler(adapter, authn, ws.Options{
		WriteTimeout: cfg.WSWriteTimeout,
		ReadTimeout:  cfg.WSReadTimeout,
		PingInterval: cfg.PingInterval,
		BufferSize:   cfg.WSBufferSize,
	}, log)

	apiServer := api.NewServer(api.Deps{
		Feeds:        feeds,
		Auth:         authn,
		Store:        st,
		Hub:          h,
		Metrics:      m.Handler(),
		WS:           wsHandler,
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		Log:          log,
	})

	return &application{
		cfg:   cfg,
		log:   log,
		store: st,
		hub:   h,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      apiServer.Router(),
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
		},
	}, nil
}

func (a *application) run() error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr()).Msg("listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("store close failed")
	}

	sessions, rooms := a.hub.Stats()
	a.log.Info().Int("sessions", sessions).Int("rooms", rooms).Msg("stopped")
	return nil
}

func main() {
	log := logger.New("feedhub")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	app, err := newApplication(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	if err := app.run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
