// Package engine orchestrates fetching, reconciliation, persistence and
// analysis of streetlight days.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/store"
	"streetlight_monitor/internal/sun"
	"streetlight_monitor/internal/switchtime"
)

// Provider is the time-series source. Implementations degrade to empty
// results instead of failing.
type Provider interface {
	Entity(ctx context.Context, q provider.EntityQuery) []model.Sample
	Types(ctx context.Context, q provider.TypeQuery) map[string][]model.Sample
	Illuminance(ctx context.Context, service model.Service, device string, day model.TimeRange) []switchtime.Reading
}

// Sink receives completed day reports.
type Sink interface {
	Publish(ctx context.Context, report DayReport) error
}

// Engine runs the per-entity and per-area pipelines.
type Engine struct {
	provider Provider
	repo     store.Repository
	resolver *calendar.Resolver
	sun      sun.Location
	now      func() time.Time
	workers  int
	sinks    []Sink
	log      zerolog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithResolver(r *calendar.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithSun(loc sun.Location) Option {
	return func(e *Engine) { e.sun = loc }
}

// WithWorkers bounds the entity fan-out of AnalyzeArea.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSinks adds report sinks.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

func New(p Provider, repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		repo:     repo,
		sun:      sun.Default(),
		now:      time.Now,
		workers:  8,
		log:      logging.Component("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = calendar.NewResolver(nil)
	}
	return e
}

// Resolver exposes the calendar used by the engine.
func (e *Engine) Resolver() *calendar.Resolver { return e.resolver }

// dayComplete reports whether the operating day of date has ended.
func (e *Engine) dayComplete(date time.Time) bool {
	return !e.now().Before(e.resolver.OperatingDay(date).End)
}
