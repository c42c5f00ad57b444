package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"streetlight_monitor/internal/api"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/config"
	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/errtrack"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/publish"
	"streetlight_monitor/internal/store"
	"streetlight_monitor/internal/ws"
)

func main() {
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	errtrack.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, cfg.Sentry.Release)
	defer errtrack.Flush()

	log.Info().Str("config", cfg.String()).Msg("starting")

	areas, err := config.LoadAreas(cfg.AreasFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading areas")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer closeRepo()
	if cfg.Database.URL == "" {
		log.Warn().Msg("DATABASE_URL empty, using in-memory storage")
	}

	hub := ws.NewHub()
	sinks := []engine.Sink{ws.NewBridge(hub)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := publish.NewKafka(publish.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic)
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing day reports to kafka")
	}

	dates := calendar.NewDateCache()
	eng := engine.New(
		provider.New(cfg.Provider, dates),
		repo,
		engine.WithResolver(calendar.NewResolver(dates)),
		engine.WithSun(cfg.Sun),
		engine.WithWorkers(cfg.AreaWorkers),
		engine.WithSinks(sinks...),
	)

	handler := routes(api.NewServer(eng, areas), ws.NewHandler(hub, eng, areas), cfg.CORSOrigins, *frontendDir)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Int("areas", len(areas)).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// routes mounts the API and, when the directory exists, the dashboard build.
func routes(s *api.Server, wsHandler http.Handler, origins []string, frontendDir string) http.Handler {
	apiHandler := s.Handler(api.Options{WS: wsHandler, CORSOrigins: origins})
	if frontendDir == "" {
		return apiHandler
	}
	if _, err := os.Stat(frontendDir); err != nil {
		return apiHandler
	}

	log.Info().Str("dir", frontendDir).Msg("serving frontend")
	r := chi.NewRouter()
	r.Handle("/health", apiHandler)
	r.Handle("/ws", apiHandler)
	r.Handle("/api/*", apiHandler)
	r.Handle("/*", http.FileServer(http.Dir(frontendDir)))
	return r
}
