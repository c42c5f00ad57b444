package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/ingest"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/switchtime"
)

// Replay answers queries from a raw CSV export instead of the provider.
// Each entity is parsed on first use.
type Replay struct {
	data  []byte
	cache *calendar.DateCache
	log   zerolog.Logger

	mu       sync.Mutex
	entities map[string][]model.Sample
}

// NewReplay reads the whole export from r.
func NewReplay(r io.Reader, cache *calendar.DateCache) (*Replay, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	if cache == nil {
		cache = calendar.NewDateCache()
	}
	return &Replay{
		data:     data,
		cache:    cache,
		log:      logging.Component("replay"),
		entities: make(map[string][]model.Sample),
	}, nil
}

func (r *Replay) samples(entity string) []model.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.entities[entity]; ok {
		return s
	}
	p := &ingest.CSVParser{Entity: entity, Cache: r.cache}
	s, err := p.Parse(bytes.NewReader(r.data))
	if err != nil {
		r.log.Warn().Err(err).Str("entity", entity).Msg("parsing export failed")
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
	r.entities[entity] = s
	return s
}

// Entity returns the samples of q.Entity in [From, To] restricted to the
// queried attributes. Aggregation is left to the day split.
func (r *Replay) Entity(_ context.Context, q EntityQuery) []model.Sample {
	wanted := make(map[string]bool, len(q.Attributes))
	for _, a := range q.Attributes {
		wanted[a] = true
	}

	var out []model.Sample
	for _, s := range r.samples(q.Entity) {
		if s.Time.Before(q.From) || s.Time.After(q.To) {
			continue
		}
		attrs := model.Attributes{}
		for name, v := range s.Values {
			if len(wanted) == 0 || wanted[name] {
				attrs[name] = v
			}
		}
		if len(attrs) > 0 {
			out = append(out, model.Sample{Time: s.Time, Values: attrs})
		}
	}
	return out
}

// Types answers a type query entity by entity. Only the listed entities are
// replayed since the export carries no entity types.
func (r *Replay) Types(ctx context.Context, q TypeQuery) map[string][]model.Sample {
	out := make(map[string][]model.Sample, len(q.Entities))
	for _, entity := range q.Entities {
		samples := r.Entity(ctx, EntityQuery{
			Service:    q.Service,
			Entity:     entity,
			Attributes: q.Attributes,
			From:       q.From,
			To:         q.To,
		})
		if len(samples) > 0 {
			out[entity] = samples
		}
	}
	return out
}

func (r *Replay) Illuminance(_ context.Context, _ model.Service, device string, day model.TimeRange) []switchtime.Reading {
	var out []switchtime.Reading
	for _, s := range r.samples(device) {
		if s.Time.Before(day.Start) || !s.Time.Before(day.End) {
			continue
		}
		if x, ok := s.Values.Lookup(model.AttrIlluminance); ok {
			out = append(out, switchtime.Reading{Time: s.Time, Value: x})
		}
	}
	return out
}
