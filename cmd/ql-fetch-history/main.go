package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/config"
	"streetlight_monitor/internal/ingest"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
)

const timestampLayout = "2006-01-02T15:04:05.000"

type record struct {
	entity string
	attr   string
	value  string
	ts     time.Time
}

// source is the part of the provider client the export needs.
type source interface {
	EntityPages(ctx context.Context, q provider.EntityQuery) []ingest.EntitiesPage
}

func main() {
	service := flag.String("service", string(model.ServiceViinikka), "service (tampere or viinikka)")
	entity := flag.String("entity", "", "entity id")
	attrs := flag.String("attrs", "", "comma-separated attributes (default: the service attributes)")
	days := flag.Int("days", 7, "Days to fetch on first run (ignored if output file has data)")
	output := flag.String("output", "", "Output CSV path (default input/ql/<entity>.csv)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	logging.Setup(cfg.LogLevel, "console")

	svc := model.Service(*service)
	if !svc.Valid() {
		log.Fatal().Str("service", *service).Msg("unknown service")
	}
	if *entity == "" {
		log.Fatal().Msg("-entity is required")
	}
	if cfg.Provider.Address == "" {
		log.Fatal().Msg("QUANTUMLEAP_ADDRESS not set, set it in the environment or .env")
	}
	attributes := svc.Info().Attributes
	if *attrs != "" {
		attributes = strings.Split(*attrs, ",")
	}
	path := *output
	if path == "" {
		path = filepath.Join("input", "ql", strings.ReplaceAll(*entity, ":", "_")+".csv")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cache := calendar.NewDateCache()
	existing, latest := loadExistingRecords(path, cache)

	var start time.Time
	if !latest.IsZero() {
		start = latest.Add(-1 * time.Minute)
		log.Info().Time("from", start).Msg("resuming from latest timestamp minus 1min overlap")
	} else {
		start = time.Now().UTC().AddDate(0, 0, -*days)
		log.Info().Int("days", *days).Time("from", start).Msg("first run")
	}

	client := provider.New(cfg.Provider, cache)
	fetched := fetchRange(ctx, client, svc, *entity, attributes, start, time.Now().UTC(), cache)
	merged := mergeRecords(existing, fetched)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating output directory")
	}
	if err := writeCSV(path, merged); err != nil {
		log.Fatal().Err(err).Msg("writing CSV")
	}

	log.Info().
		Str("output", path).
		Int("records", len(merged)).
		Int("existing", len(existing)).
		Int("fetched", len(fetched)).
		Msg("export written")
}

// fetchRange pulls the entity one day at a time.
func fetchRange(ctx context.Context, src source, service model.Service, entity string, attrs []string, from, to time.Time, cache *calendar.DateCache) []record {
	var out []record
	for start := from; start.Before(to); start = start.Add(24 * time.Hour) {
		if ctx.Err() != nil {
			break
		}
		end := start.Add(24 * time.Hour)
		if end.After(to) {
			end = to
		}
		pages := src.EntityPages(ctx, provider.EntityQuery{
			Service:    service,
			Entity:     entity,
			Attributes: attrs,
			From:       start,
			To:         end,
		})
		day := recordsFromPages(entity, pages, cache)
		out = append(out, day...)
		log.Info().Str("day", calendar.FormatDate(start)).Int("records", len(day)).Msg("fetched")
	}
	return out
}

// recordsFromPages flattens entity pages into one row per value. Phased
// values become one row per phase; absent values are skipped.
func recordsFromPages(entity string, pages []ingest.EntitiesPage, cache *calendar.DateCache) []record {
	var out []record
	for _, page := range pages {
		id := page.EntityID
		if id == "" {
			id = entity
		}
		for _, series := range page.Attributes {
			for i, v := range series.Values {
				if i >= len(page.Index) || !v.Present() {
					continue
				}
				ts, err := cache.Parse(page.Index[i])
				if err != nil {
					continue
				}
				if v.Kind() == model.KindPhased {
					for _, p := range v.PresentPhases() {
						x, _ := v.Phase(p)
						out = append(out, record{id, model.PhaseName(series.AttrName, p), model.Scalar(x).String(), ts})
					}
					continue
				}
				out = append(out, record{id, series.AttrName, v.String(), ts})
			}
		}
	}
	return out
}

func loadExistingRecords(path string, cache *calendar.DateCache) ([]record, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	// skip header
	if _, err := cr.Read(); err != nil {
		return nil, time.Time{}
	}

	var records []record
	var latest time.Time
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(row) < 4 {
			continue
		}
		ts, err := cache.Parse(row[3])
		if err != nil {
			continue
		}
		records = append(records, record{entity: row[0], attr: row[1], value: row[2], ts: ts})
		if ts.After(latest) {
			latest = ts
		}
	}
	return records, latest
}

func mergeRecords(existing, fetched []record) []record {
	type key struct {
		entity string
		attr   string
		ts     time.Time
	}

	seen := make(map[key]record, len(existing)+len(fetched))
	for _, r := range existing {
		seen[key{r.entity, r.attr, r.ts}] = r
	}
	for _, r := range fetched {
		seen[key{r.entity, r.attr, r.ts}] = r // fetched overwrites existing on conflict
	}

	merged := make([]record, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].ts.Equal(merged[j].ts) {
			return merged[i].ts.Before(merged[j].ts)
		}
		if merged[i].entity != merged[j].entity {
			return merged[i].entity < merged[j].entity
		}
		return merged[i].attr < merged[j].attr
	})
	return merged
}

func writeCSV(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([][4]string, len(records))
	for i, r := range records {
		rows[i] = [4]string{r.entity, r.attr, r.value, r.ts.UTC().Format(timestampLayout)}
	}
	return ingest.WriteCSV(f, rows)
}
