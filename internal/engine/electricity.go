package engine

import (
	"context"
	"time"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/reconcile"
	"streetlight_monitor/internal/stats"
)

// Electricity is one reconciled entity day with its history.
type Electricity struct {
	Service   model.Service
	Entity    string
	Date      time.Time
	Day       *model.Day
	Estimates model.Estimates
	History   model.History
	Annotated *model.AnnotatedDay
}

// Confidences pairs every bucket value with its confidence.
func (el *Electricity) Confidences() *model.OrderedMap[map[string]model.Confidence] {
	out := model.NewOrderedMap[map[string]model.Confidence]()
	for bucket, attrs := range el.Day.All() {
		values := make(map[string]model.Confidence, len(attrs))
		for attr, v := range attrs {
			values[attr] = model.NewConfidence(v, valueLevel(el.Estimates, bucket, attr, v))
		}
		out.Set(bucket, values)
	}
	return out
}

// ElectricityValues returns the reconciled day of entity on date. Stored
// data is replayed according to the completeness record; whatever is not
// stored is fetched, reconciled and persisted.
func (e *Engine) ElectricityValues(ctx context.Context, service model.Service, entity string, date time.Time) (*Electricity, error) {
	if err := validateEntity(service, entity); err != nil {
		return nil, err
	}
	date = calendar.Midnight(date)
	state := e.storageState(ctx, entity, date)

	el := &Electricity{Service: service, Entity: entity, Date: date}

	if state.Realtime == model.StoredNone && state.History == model.StoredNone {
		day, history := e.fetchFull(ctx, service, entity, date)
		el.History = history
		e.persistHistory(ctx, service, entity, date, history)
		state.History = model.StoredFull
		el.Day, el.Estimates = e.reconcileDay(ctx, service, entity, date, day, nil)
	} else {
		if state.History == model.StoredFull {
			el.History = e.storedHistory(ctx, service, entity, date)
		} else {
			el.History = e.fetchHistory(ctx, service, entity, date)
			e.persistHistory(ctx, service, entity, date, el.History)
			state.History = model.StoredFull
		}

		switch state.Realtime {
		case model.StoredFull:
			el.Day, el.Estimates = e.storedDay(ctx, service, entity, date)
		case model.StoredPart:
			stored, est := e.storedDay(ctx, service, entity, date)
			from := e.resolver.OperatingDay(date).Start
			if n := stored.Len(); n > 0 {
				last, _ := stored.At(n - 1)
				ts, err := e.resolver.BucketTime(date, last)
				if err == nil {
					from = ts.Add(time.Hour + time.Second)
				}
			}
			fetched := e.fetchDay(ctx, service, entity, date, from)
			el.Day, el.Estimates = e.reconcileDay(ctx, service, entity, date, mergeDays(stored, fetched), est)
		default:
			day := e.fetchDay(ctx, service, entity, date, e.resolver.OperatingDay(date).Start)
			el.Day, el.Estimates = e.reconcileDay(ctx, service, entity, date, day, nil)
		}
	}

	if state.Realtime != model.StoredFull {
		state.Realtime = e.realtimeFlag(service, date)
	}
	if err := e.repo.SaveStorageState(ctx, state); err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("saving storage state failed")
	}

	el.Annotated = stats.CombineWithHistory(service, el.Day, el.History)
	return el, nil
}

func validateEntity(service model.Service, entity string) error {
	if !service.Valid() {
		return apperr.Validation("unknown service %q", service)
	}
	if entity == "" {
		return apperr.Validation("entity id is required")
	}
	return nil
}

func (e *Engine) storageState(ctx context.Context, entity string, date time.Time) model.StorageState {
	st, ok, err := e.repo.StorageState(ctx, entity, date)
	if err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("reading storage state failed")
	}
	if err != nil || !ok {
		return model.StorageState{Entity: entity, Date: date, Realtime: model.StoredNone, History: model.StoredNone}
	}
	if st.Realtime == "" {
		st.Realtime = model.StoredNone
	}
	if st.History == "" {
		st.History = model.StoredNone
	}
	return st
}

// realtimeFlag is full once the service's full-store limit has passed since
// the start of date.
func (e *Engine) realtimeFlag(service model.Service, date time.Time) model.StorageFlag {
	if e.now().Sub(date) > service.Info().FullStoreLimit {
		return model.StoredFull
	}
	return model.StoredPart
}

func (e *Engine) query(service model.Service, entity string, attrs []string, from, to time.Time) provider.EntityQuery {
	return provider.EntityQuery{
		Service:    service,
		Entity:     entity,
		Attributes: attrs,
		From:       from,
		To:         to,
		Aggregate:  service.Info().Aggregated,
		Interval:   model.RecentDataInterval,
	}
}

func (e *Engine) historyStart(date time.Time) time.Time {
	return e.resolver.OperatingDay(date).Start.AddDate(0, 0, -model.HistoryDays)
}

// dayEnd is the inclusive end used in provider queries.
func (e *Engine) dayEnd(date time.Time) time.Time {
	return e.resolver.OperatingDay(date).End.Add(-time.Millisecond)
}

// fetchFull loads history and day. Unaggregated services get both in one
// query; aggregated ones query history and day separately.
func (e *Engine) fetchFull(ctx context.Context, service model.Service, entity string, date time.Time) (*model.Day, model.History) {
	info := service.Info()
	if !info.Aggregated {
		samples := e.provider.Entity(ctx, e.query(service, entity, info.Attributes, e.historyStart(date), e.dayEnd(date)))
		split := reconcile.Split(samples, date, e.resolver, model.RecentDataInterval)
		return split.Day, split.History
	}
	history := e.fetchHistory(ctx, service, entity, date)
	day := e.fetchDay(ctx, service, entity, date, e.resolver.OperatingDay(date).Start)
	return day, history
}

func (e *Engine) fetchHistory(ctx context.Context, service model.Service, entity string, date time.Time) model.History {
	end := e.resolver.OperatingDay(date).Start.Add(-time.Millisecond)
	samples := e.provider.Entity(ctx, e.query(service, entity, model.HistoryAttributes(service), e.historyStart(date), end))
	return reconcile.Split(samples, date, e.resolver, model.RecentDataInterval).History
}

func (e *Engine) fetchDay(ctx context.Context, service model.Service, entity string, date, from time.Time) *model.Day {
	to := e.dayEnd(date)
	if !from.Before(to) {
		return model.NewDay()
	}
	samples := e.provider.Entity(ctx, e.query(service, entity, service.Info().Attributes, from, to))
	return reconcile.Split(samples, date, e.resolver, model.RecentDataInterval).Day
}

func (e *Engine) storedDay(ctx context.Context, service model.Service, entity string, date time.Time) (*model.Day, model.Estimates) {
	day := e.resolver.OperatingDay(date)
	ms, err := e.repo.Measurements(ctx, entity, model.KindRealtime, day.Start, day.End)
	if err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("reading stored day failed")
		return model.NewDay(), model.Estimates{}
	}
	return replayDay(service, ms)
}

func (e *Engine) storedHistory(ctx context.Context, service model.Service, entity string, date time.Time) model.History {
	day := e.resolver.OperatingDay(date)
	var rows []model.Measurement
	for _, kind := range []model.MeasurementKind{model.KindAvg, model.KindStdev} {
		ms, err := e.repo.Measurements(ctx, entity, kind, day.Start, day.End)
		if err != nil {
			e.log.Warn().Err(err).Str("entity", entity).Msg("reading stored history failed")
			return model.History{}
		}
		rows = append(rows, ms...)
	}
	return replayHistory(service, rows)
}

func (e *Engine) persistHistory(ctx context.Context, service model.Service, entity string, date time.Time, history model.History) {
	if err := e.repo.SaveMeasurements(ctx, e.historyMeasurements(service, entity, date, history)); err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("saving history failed")
	}
}

// previousValue seeds gap filling from the last reading shortly before the
// operating day. The store is asked first; when it has nothing the window is
// fetched from the provider and the fetched buckets are stored. Lookup
// failures count as not found.
func (e *Engine) previousValue(ctx context.Context, service model.Service, entity string, date time.Time) reconcile.PreviousValue {
	window := e.resolver.PreviousDayWindow(date)
	fetched := map[string][]model.Sample{}
	return func(attr string) (float64, bool) {
		name, ok := model.StorageName(service, attr)
		if !ok {
			return 0, false
		}
		m, ok, err := e.repo.LatestMeasurement(ctx, entity, name, window.Start, window.End)
		if err != nil {
			e.log.Debug().Err(err).Str("entity", entity).Str("attr", attr).Msg("previous value lookup failed")
		}
		if ok {
			return m.Value, true
		}

		parent, _, _ := model.SplitName(attr)
		samples, done := fetched[parent]
		if !done {
			samples = e.provider.Entity(ctx, e.query(service, entity, []string{parent}, window.Start, window.End.Add(-time.Millisecond)))
			fetched[parent] = samples
		}
		return e.seedFromSamples(ctx, entity, attr, name, samples)
	}
}

// seedFromSamples averages samples into recent-data buckets, stores them as
// realtime rows and returns the value of the last bucket.
func (e *Engine) seedFromSamples(ctx context.Context, entity, attr, name string, samples []model.Sample) (float64, bool) {
	interval := time.Duration(model.RecentDataInterval) * time.Second
	var stamps []time.Time
	buckets := map[time.Time][]model.AttributeValue{}
	for _, s := range samples {
		x, ok := s.Values.Lookup(attr)
		if !ok {
			continue
		}
		ts := s.Time.UTC().Truncate(interval)
		if _, seen := buckets[ts]; !seen {
			stamps = append(stamps, ts)
		}
		buckets[ts] = append(buckets[ts], model.Scalar(x))
	}
	if len(stamps) == 0 {
		return 0, false
	}

	rows := make([]model.Measurement, 0, len(stamps))
	var last float64
	for _, ts := range stamps {
		last, _ = stats.Mean(buckets[ts]).Float()
		rows = append(rows, model.Measurement{
			Entity: entity, Name: name, Kind: model.KindRealtime,
			Value: last, Timestamp: ts, IsActual: 1,
		})
	}
	if err := e.repo.SaveMeasurements(ctx, rows); err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("saving previous day values failed")
	}
	return last, true
}

// reconcileDay completes, derives and persists a day.
func (e *Engine) reconcileDay(ctx context.Context, service model.Service, entity string, date time.Time, day *model.Day, prior model.Estimates) (*model.Day, model.Estimates) {
	hours := e.resolver.HourRange(date, e.now())
	day, est := reconcile.Reconcile(service, day, hours, e.previousValue(ctx, service, entity, date), prior)

	e.log.Debug().
		Str("entity", entity).
		Str("date", calendar.FormatDate(date)).
		Int("buckets", day.Len()).
		Int("estimated_buckets", len(est)).
		Msg("reconciled day")

	if err := e.repo.SaveMeasurements(ctx, e.dayMeasurements(service, entity, date, day, est)); err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("saving day failed")
	}
	return day, est
}

// mergeDays adds fetched buckets and attributes missing from stored.
// Stored values win.
func mergeDays(stored, fetched *model.Day) *model.Day {
	for bucket, attrs := range fetched.All() {
		cur, ok := stored.Get(bucket)
		if !ok {
			stored.Set(bucket, attrs)
			continue
		}
		for attr, v := range attrs {
			if _, exists := cur[attr]; !exists {
				cur[attr] = v
			}
		}
	}
	return stored
}
