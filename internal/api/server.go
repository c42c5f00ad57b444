// Package api serves reconciled days, energy and area reports over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
)

var startTime = time.Now()

// Server holds the handler dependencies.
type Server struct {
	engine *engine.Engine
	areas  map[string]model.Area
	log    zerolog.Logger
}

// Options configure the router.
type Options struct {
	// WS serves /ws when set.
	WS          http.Handler
	CORSOrigins []string
	Timeout     time.Duration
}

func NewServer(eng *engine.Engine, areas []model.Area) *Server {
	byName := make(map[string]model.Area, len(areas))
	for _, a := range areas {
		byName[a.Name] = a
	}
	return &Server{engine: eng, areas: byName, log: logging.Component("api")}
}

// Handler builds the router. The websocket route is mounted outside the
// request timeout.
func (s *Server) Handler(opts Options) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if opts.WS != nil {
		r.Handle("/ws", opts.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout))

		r.Get("/health", handleHealth)

		r.Route("/api", func(r chi.Router) {
			r.Get("/entities/{service}/{entity}/days/{date}", s.handleDay)
			r.Get("/entities/{service}/{entity}/days/{date}/energy", s.handleEnergy)
			r.Get("/areas", s.handleAreas)
			r.Get("/areas/{area}/days/{date}", s.handleAreaReport)
			r.Get("/areas/{area}/days/{date}/switch-times", s.handleSwitchTimes)
		})
	})

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
