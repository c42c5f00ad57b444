package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/store"
	"streetlight_monitor/internal/switchtime"
)

var summerDate = time.Date(2019, time.July, 10, 0, 0, 0, 0, time.UTC)

// mockProvider answers entity queries from a fixed series, filtered to the
// queried range.
type mockProvider struct {
	mock.Mock
	series []model.Sample
}

func (m *mockProvider) Entity(ctx context.Context, q provider.EntityQuery) []model.Sample {
	m.Called(q)
	var out []model.Sample
	for _, s := range m.series {
		if s.Time.Before(q.From) || s.Time.After(q.To) {
			continue
		}
		attrs := model.Attributes{}
		for _, a := range q.Attributes {
			if v, ok := s.Values[a]; ok {
				attrs[a] = v
			}
		}
		if len(attrs) > 0 {
			out = append(out, model.Sample{Time: s.Time, Values: attrs})
		}
	}
	return out
}

func (m *mockProvider) Types(ctx context.Context, q provider.TypeQuery) map[string][]model.Sample {
	args := m.Called(q)
	return args.Get(0).(map[string][]model.Sample)
}

func (m *mockProvider) Illuminance(ctx context.Context, service model.Service, device string, day model.TimeRange) []switchtime.Reading {
	args := m.Called(service, device, day)
	return args.Get(0).([]switchtime.Reading)
}

// queries returns the entity queries received so far.
func (m *mockProvider) queries() []provider.EntityQuery {
	var out []provider.EntityQuery
	for _, c := range m.Calls {
		if c.Method == "Entity" {
			out = append(out, c.Arguments.Get(0).(provider.EntityQuery))
		}
	}
	return out
}

// countingRepo counts storage state writes, one per reconciled entity day.
type countingRepo struct {
	store.Repository
	mu     sync.Mutex
	states int
}

func (r *countingRepo) SaveStorageState(ctx context.Context, st model.StorageState) error {
	r.mu.Lock()
	r.states++
	r.mu.Unlock()
	return r.Repository.SaveStorageState(ctx, st)
}

type recordingSink struct {
	mu      sync.Mutex
	reports []DayReport
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, r DayReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

func powerSample(t time.Time, v float64) model.Sample {
	return model.Sample{Time: t, Values: model.Attributes{model.AttrActivePower: model.Scalar(v)}}
}

// makeViinikkaSeries has hourly power at minute 10 from 21:10 on the 9th,
// skipping the hours in skip, plus two history samples at 22:10.
func makeViinikkaSeries(value func(h int) float64, skip ...int) []model.Sample {
	skipped := map[int]bool{}
	for _, h := range skip {
		skipped[h] = true
	}
	series := []model.Sample{
		powerSample(time.Date(2019, time.July, 7, 22, 10, 0, 0, time.UTC), 11),
		powerSample(time.Date(2019, time.July, 8, 22, 10, 0, 0, time.UTC), 9),
	}
	start := time.Date(2019, time.July, 9, 21, 10, 0, 0, time.UTC)
	for i := range model.HoursInDay {
		ts := start.Add(time.Duration(i) * time.Hour)
		if skipped[ts.Hour()] {
			continue
		}
		series = append(series, powerSample(ts, value(ts.Hour())))
	}
	return series
}

func newTestEngine(p Provider, repo store.Repository, now *time.Time, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return *now })}, opts...)
	return New(p, repo, opts...)
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

func TestEngine_ElectricityValuesFullFetchViinikka(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(constant(10), 2)}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	el, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)

	require.Equal(t, model.HoursInDay, el.Day.Len())
	first, _ := el.Day.At(0)
	assert.Equal(t, "21:00:00", first)

	gap, ok := el.Day.Get("02:00:00")
	require.True(t, ok)
	power, _ := gap[model.AttrActivePower].Float()
	assert.InDelta(t, 10.0, power, 0.001)
	assert.Equal(t, 0.0, el.Estimates.Level("02:00:00", model.AttrActivePower))
	assert.Equal(t, 0.0, el.Estimates.Level("02:00:00", model.AttrEnergy))
	assert.Equal(t, 1.0, el.Estimates.Level("03:00:00", model.AttrActivePower))

	stat, ok := el.History.Hour(model.AttrActivePower, 22)
	require.True(t, ok)
	assert.Equal(t, model.Scalar(10), stat.Avg)

	obs := el.Annotated
	bucket, ok := obs.Get("22:00:00")
	require.True(t, ok)
	assert.Equal(t, model.Scalar(10), bucket[model.AttrActivePower].History.Avg)

	// Aggregated service: one history query, one day query.
	qs := p.queries()
	require.Len(t, qs, 2)
	opday := e.Resolver().OperatingDay(summerDate)
	assert.True(t, qs[0].From.Before(opday.Start))
	assert.Equal(t, []string{model.AttrActivePower, model.AttrIntensity, model.AttrVoltage}, qs[0].Attributes)
	assert.True(t, qs[1].From.Equal(opday.Start))
	assert.True(t, qs[1].Aggregate)

	st, ok, err := repo.StorageState(t.Context(), "KV-0125-C01", summerDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StoredFull, st.Realtime)
	assert.Equal(t, model.StoredFull, st.History)

	ms, err := repo.Measurements(t.Context(), "KV-0125-C01", model.KindRealtime, opday.Start, opday.End)
	require.NoError(t, err)
	// power and energy per bucket
	assert.Len(t, ms, 2*model.HoursInDay)
}

func TestEngine_ElectricityValuesReplaysStoredDay(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(constant(10), 2)}
	p.On("Entity", mock.Anything)
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, store.NewMemory(), &now)

	_, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	calls := len(p.queries())

	el, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.Len(t, p.queries(), calls, "stored day must not be fetched again")

	require.Equal(t, model.HoursInDay, el.Day.Len())
	assert.Equal(t, 0.0, el.Estimates.Level("02:00:00", model.AttrActivePower))
	assert.Equal(t, 0.0, el.Estimates.Level("02:00:00", model.AttrEnergy))
	assert.False(t, el.Estimates.Has("03:00:00", model.AttrActivePower))

	stat, ok := el.History.Hour(model.AttrActivePower, 22)
	require.True(t, ok)
	assert.Equal(t, model.Scalar(10), stat.Avg)
	assert.True(t, stat.Stdev.Present())
}

func TestEngine_ElectricityValuesPartialDayResumes(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(func(h int) float64 {
		if h >= 3 && h < 21 {
			return 20
		}
		return 10
	})}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 10, 3, 30, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	el, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"21:00:00", "22:00:00", "23:00:00", "00:00:00", "01:00:00", "02:00:00"}, el.Day.Keys())

	st, _, err := repo.StorageState(t.Context(), "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.Equal(t, model.StoredPart, st.Realtime)

	now = time.Date(2019, time.July, 10, 5, 30, 0, 0, time.UTC)
	el, err = e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	require.Equal(t, 8, el.Day.Len())

	qs := p.queries()
	last := qs[len(qs)-1]
	assert.True(t, last.From.Equal(time.Date(2019, time.July, 10, 3, 0, 1, 0, time.UTC)), last.From)

	attrs, _ := el.Day.Get("04:00:00")
	power, _ := attrs[model.AttrActivePower].Float()
	assert.InDelta(t, 20.0, power, 0.001)
	attrs, _ = el.Day.Get("21:00:00")
	power, _ = attrs[model.AttrActivePower].Float()
	assert.InDelta(t, 10.0, power, 0.001)
}

func tampereSample(ts time.Time, current, voltage float64) model.Sample {
	phases := func(x float64) model.AttributeValue {
		return model.Phased(map[model.Phase]float64{model.L1: x, model.L2: x, model.L3: x})
	}
	return model.Sample{Time: ts, Values: model.Attributes{
		model.AttrIntensity: phases(current),
		model.AttrVoltage:   phases(voltage),
	}}
}

func TestEngine_TampereSingleQueryAndEnergy(t *testing.T) {
	var series []model.Sample
	start := time.Date(2019, time.July, 9, 21, 5, 0, 0, time.UTC)
	series = append(series, tampereSample(start.Add(-24*time.Hour), 2, 230))
	for i := range model.HoursInDay {
		series = append(series, tampereSample(start.Add(time.Duration(i)*time.Hour), 1, 230))
	}
	p := &mockProvider{series: series}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	de, err := e.DailyEnergy(t.Context(), model.ServiceTampere, "KV-0217-C01", summerDate)
	require.NoError(t, err)
	assert.InDelta(t, 24*3*230.0, de.Value, 0.001)
	assert.InDelta(t, 0.0, de.EstimatedHours, 0.001)
	require.Len(t, p.queries(), 1)
	assert.False(t, p.queries()[0].Aggregate)

	cached, ok, err := repo.DayEnergy(t.Context(), "KV-0217-C01", summerDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, de.Value, cached.Value, 0.001)

	// Energy replays from storage under the L0 phase.
	levels, err := e.EnergyValues(t.Context(), model.ServiceTampere, "KV-0217-C01", summerDate)
	require.NoError(t, err)
	require.Equal(t, model.HoursInDay, levels.Len())
	_, c := levels.At(0)
	x, _ := c.Value.Float()
	assert.InDelta(t, 690.0, x, 0.001)
	assert.Equal(t, 1.0, c.Level)
	assert.Len(t, p.queries(), 1)
}

func TestEngine_DailyEnergyEstimatedHours(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(constant(10), 2, 3)}
	p.On("Entity", mock.Anything)
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, store.NewMemory(), &now)

	de, err := e.DailyEnergy(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.InDelta(t, 240.0, de.Value, 0.001)
	assert.InDelta(t, 2.0, de.EstimatedHours, 0.001)
}

func TestEngine_DailyEnergyNotCachedForPartialDay(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(constant(10))}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 10, 3, 30, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	de, err := e.DailyEnergy(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, de.Value, 0.001)

	_, ok, err := repo.DayEnergy(t.Context(), "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_ElectricityValuesRejectsUnknownService(t *testing.T) {
	now := summerDate
	e := newTestEngine(&mockProvider{}, store.NewMemory(), &now)
	_, err := e.ElectricityValues(t.Context(), model.Service("helsinki"), "x", summerDate)
	require.Error(t, err)
}

func TestFormatEnergy(t *testing.T) {
	tests := []struct {
		wh   float64
		want string
	}{
		{0, "0 Wh"},
		{999, "999 Wh"},
		{1500, "1.5 kWh"},
		{2_340_000, "2.34 MWh"},
		{5_000_000_000, "5.000 GWh"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatEnergy(tt.wh))
	}
}

func TestMissingDataWarnings(t *testing.T) {
	day := model.NewDay()
	day.Set("21:00:00", model.Attributes{model.AttrActivePower: model.Scalar(5)})
	day.Set("22:00:00", model.Attributes{model.AttrActivePower: model.Scalar(5)})
	day.Set("23:00:00", model.Attributes{})
	est := model.Estimates{}
	est.Add("22:00:00", model.AttrActivePower, 0)

	w := MissingDataWarnings(day, est)
	assert.False(t, w.NotConnected)
	assert.True(t, w.MissingDataOne)
	assert.True(t, w.MissingDataHalf)
}

func TestMissingDataWarnings_NotConnected(t *testing.T) {
	day := model.NewDay()
	day.Set("21:00:00", model.Attributes{model.AttrActivePower: model.Scalar(5)})
	day.Set("22:00:00", model.Attributes{model.AttrActivePower: model.Scalar(5)})
	est := model.Estimates{}
	est.Add("21:00:00", model.AttrActivePower, 0.2)
	est.Add("22:00:00", model.AttrActivePower, 0.3)

	w := MissingDataWarnings(day, est)
	assert.True(t, w.NotConnected)
	assert.True(t, w.MissingDataHalf)
}

func TestMissingDataWarnings_PhasedNeedsEveryPhase(t *testing.T) {
	day := model.NewDay()
	for _, b := range []string{"21:00:00", "22:00:00", "23:00:00"} {
		day.Set(b, model.Attributes{
			model.AttrIntensity: model.Phased(map[model.Phase]float64{model.L1: 1, model.L2: 1, model.L3: 1}),
			model.AttrEnergy:    model.Phased(map[model.Phase]float64{model.L0: 690}),
		})
	}
	est := model.Estimates{}
	est.Add("21:00:00", "intensity.L1", 0)
	est.Add("21:00:00", model.AttrEnergy, 0)

	w := MissingDataWarnings(day, est)
	assert.False(t, w.NotConnected)
	assert.False(t, w.MissingDataOne)
	assert.False(t, w.MissingDataHalf)
}

func TestNoWarnings(t *testing.T) {
	assert.False(t, NoWarnings(nil))
	assert.True(t, NoWarnings(&model.DateWarning{}))
	assert.False(t, NoWarnings(&model.DateWarning{WrongSwitchOnTime: true}))
}

func TestEngine_ExpectedSwitchTimesStoredForPastDay(t *testing.T) {
	area := model.Area{Name: "viinikka-1", Service: model.ServiceViinikka, Entities: []string{"KV-0125-C01"}}
	p := &mockProvider{}
	p.On("Illuminance", model.ServiceViinikka, "KV-0125-LS01", mock.Anything).Return([]switchtime.Reading{}).Once()
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	times := e.ExpectedSwitchTimes(t.Context(), area, summerDate)
	// No readings on a past day: both windows fall back to the sun windows.
	assert.True(t, times.Off.Complete())
	assert.True(t, times.On.Complete())

	rs, err := repo.SwitchRecords(t.Context(), "viinikka-1", summerDate)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	again := e.ExpectedSwitchTimes(t.Context(), area, summerDate)
	assert.Equal(t, times, again)
	p.AssertExpectations(t)
}

func TestEngine_SwitchTimesNotStoredForOpenDay(t *testing.T) {
	area := model.Area{Name: "viinikka-1", Service: model.ServiceViinikka, IlluminanceDevice: "LS-2"}
	p := &mockProvider{}
	p.On("Illuminance", model.ServiceViinikka, "LS-2", mock.Anything).Return([]switchtime.Reading{})
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 10, 3, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	times := e.ExpectedSwitchTimes(t.Context(), area, summerDate)
	assert.False(t, times.Off.Complete())

	rs, err := repo.SwitchRecords(t.Context(), "viinikka-1", summerDate)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestEngine_AnalyzeAreaIsolatesFailures(t *testing.T) {
	area := model.Area{Name: "viinikka-1", Service: model.ServiceViinikka, Entities: []string{"KV-0125-C01", ""}}
	p := &mockProvider{series: makeViinikkaSeries(constant(10))}
	p.On("Entity", mock.Anything)
	p.On("Illuminance", mock.Anything, mock.Anything, mock.Anything).Return([]switchtime.Reading{})
	sink := &recordingSink{err: errors.New("broker down")}
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now, WithSinks(sink), WithWorkers(2))

	report, err := e.AnalyzeArea(t.Context(), area, summerDate)
	require.NoError(t, err)
	require.Len(t, report.Reports, 2)
	assert.Equal(t, "2019-07-10", report.Date)

	ok := report.Reports[0]
	assert.Empty(t, ok.Error)
	assert.NotEmpty(t, ok.ID)
	assert.InDelta(t, 240.0, ok.Energy, 0.001)
	assert.Equal(t, "240 Wh", ok.EnergyText)
	assert.Len(t, ok.Buckets, model.HoursInDay)
	assert.InDelta(t, 240.0, report.Energy, 0.001)

	assert.NotEmpty(t, report.Reports[1].Error)

	// Publishing errors are logged, every report still reaches the sink.
	assert.Len(t, sink.reports, 2)

	w, found, err := repo.DateWarning(t.Context(), "KV-0125-C01", summerDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, w.NotConnected)
	assert.Equal(t, ok.Comparison.WrongSwitchOnTime, w.WrongSwitchOnTime)
}

// switchSeries has the lights on from 21:00 to 01:00 and again from 19:00,
// sampled every 30 minutes.
func switchSeries() []model.Sample {
	var series []model.Sample
	start := time.Date(2019, time.July, 9, 21, 0, 0, 0, time.UTC)
	for m := 0; m < 24*60; m += 30 {
		ts := start.Add(time.Duration(m) * time.Minute)
		level := 0.0
		if ts.Before(start.Add(4*time.Hour)) || !ts.Before(start.Add(22*time.Hour)) {
			level = 1
		}
		series = append(series, model.Sample{Time: ts, Values: model.Attributes{model.AttrIlluminanceLevel: model.Scalar(level)}})
	}
	return series
}

func TestEngine_RealSwitchTimesFromMinuteData(t *testing.T) {
	p := &mockProvider{series: switchSeries()}
	p.On("Entity", mock.Anything)
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, store.NewMemory(), &now)

	times := e.RealSwitchTimes(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate, model.History{})
	assert.Equal(t, switchtime.Window{Low: "00:30:00", High: "01:00:00"}, times.Off)
	assert.Equal(t, switchtime.Window{Low: "18:30:00", High: "19:00:00"}, times.On)

	q := p.queries()[0]
	assert.Equal(t, model.SwitchTimeInterval, q.Interval)
	assert.Equal(t, []string{model.AttrIlluminanceLevel}, q.Attributes)
}

func TestEngine_AnalyzeAreaFetchesSwitchDataByType(t *testing.T) {
	area := model.Area{
		Name:       "viinikka-1",
		Service:    model.ServiceViinikka,
		EntityType: "Streetlight",
		Entities:   []string{"KV-0125-C01", "KV-0125-C02"},
	}
	p := &mockProvider{series: makeViinikkaSeries(constant(10))}
	p.On("Entity", mock.Anything)
	p.On("Illuminance", mock.Anything, mock.Anything, mock.Anything).Return([]switchtime.Reading{})
	p.On("Types", mock.Anything).Return(map[string][]model.Sample{"KV-0125-C01": switchSeries()}).Once()
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	report, err := e.AnalyzeArea(t.Context(), area, summerDate)
	require.NoError(t, err)
	require.Len(t, report.Reports, 2)

	assert.Equal(t, switchtime.Window{Low: "00:30:00", High: "01:00:00"}, report.Reports[0].Real.Off)
	assert.Equal(t, switchtime.Window{Low: "18:30:00", High: "19:00:00"}, report.Reports[0].Real.On)
	// Not in the type answer: analyzed on an empty day.
	assert.Empty(t, report.Reports[1].Error)
	assert.False(t, report.Reports[1].Real.Off.Complete())

	for _, q := range p.queries() {
		assert.NotEqual(t, model.SwitchTimeInterval, q.Interval, "switch data must come from the type query")
	}
	var tq provider.TypeQuery
	for _, c := range p.Calls {
		if c.Method == "Types" {
			tq = c.Arguments.Get(0).(provider.TypeQuery)
		}
	}
	assert.Equal(t, "Streetlight", tq.EntityType)
	assert.Equal(t, area.Entities, tq.Entities)
	assert.Equal(t, []string{model.AttrIlluminanceLevel}, tq.Attributes)
	assert.Equal(t, model.SwitchTimeInterval, tq.Interval)
	assert.True(t, tq.Aggregate)
	assert.True(t, tq.From.Equal(e.Resolver().OperatingDay(summerDate).Start))

	for _, entity := range area.Entities {
		rs, err := repo.SwitchRecords(t.Context(), entity, summerDate)
		require.NoError(t, err)
		assert.Len(t, rs, 2, entity)
	}

	// The first entity now has stored switch times: no second type query.
	again, err := e.AnalyzeArea(t.Context(), area, summerDate)
	require.NoError(t, err)
	assert.Equal(t, report.Reports[0].Real, again.Reports[0].Real)
	p.AssertNumberOfCalls(t, "Types", 1)
}

func TestEngine_SingleEntityAreaSkipsTypeQuery(t *testing.T) {
	area := model.Area{Name: "viinikka-1", Service: model.ServiceViinikka, EntityType: "Streetlight", Entities: []string{"KV-0125-C01"}}
	p := &mockProvider{series: makeViinikkaSeries(constant(10))}
	p.On("Entity", mock.Anything)
	p.On("Illuminance", mock.Anything, mock.Anything, mock.Anything).Return([]switchtime.Reading{})
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, store.NewMemory(), &now)

	_, err := e.AnalyzeArea(t.Context(), area, summerDate)
	require.NoError(t, err)
	p.AssertNotCalled(t, "Types", mock.Anything)
}

func TestEngine_PreviousValueFetchedWhenStoreEmpty(t *testing.T) {
	series := makeViinikkaSeries(constant(10), 21)
	series = append(series,
		powerSample(time.Date(2019, time.July, 9, 19, 10, 0, 0, time.UTC), 6),
		powerSample(time.Date(2019, time.July, 9, 20, 10, 0, 0, time.UTC), 7),
		powerSample(time.Date(2019, time.July, 9, 20, 40, 0, 0, time.UTC), 9),
	)
	p := &mockProvider{series: series}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	el, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)

	first, ok := el.Day.Get("21:00:00")
	require.True(t, ok)
	power, _ := first[model.AttrActivePower].Float()
	assert.InDelta(t, 8.0, power, 0.001)
	assert.Equal(t, 0.0, el.Estimates.Level("21:00:00", model.AttrActivePower))

	window := e.Resolver().PreviousDayWindow(summerDate)
	var seeded bool
	for _, q := range p.queries() {
		if q.From.Equal(window.Start) {
			seeded = true
			assert.Equal(t, []string{model.AttrActivePower}, q.Attributes)
			assert.True(t, q.Aggregate)
			assert.True(t, q.To.Before(window.End))
		}
	}
	assert.True(t, seeded, "previous evening must be fetched")

	name, ok := model.StorageName(model.ServiceViinikka, model.AttrActivePower)
	require.True(t, ok)
	m, found, err := repo.LatestMeasurement(t.Context(), "KV-0125-C01", name, window.Start, window.End)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, m.Timestamp.Equal(time.Date(2019, time.July, 9, 20, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 8.0, m.Value, 0.001)
}

func TestEngine_PreviousValuePrefersStore(t *testing.T) {
	p := &mockProvider{series: makeViinikkaSeries(constant(10), 21)}
	p.On("Entity", mock.Anything)
	repo := store.NewMemory()
	name, _ := model.StorageName(model.ServiceViinikka, model.AttrActivePower)
	require.NoError(t, repo.SaveMeasurements(t.Context(), []model.Measurement{{
		Entity: "KV-0125-C01", Name: name, Kind: model.KindRealtime,
		Value: 4, Timestamp: time.Date(2019, time.July, 9, 20, 0, 0, 0, time.UTC), IsActual: 1,
	}}))
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	el, err := e.ElectricityValues(t.Context(), model.ServiceViinikka, "KV-0125-C01", summerDate)
	require.NoError(t, err)

	first, _ := el.Day.Get("21:00:00")
	power, _ := first[model.AttrActivePower].Float()
	assert.InDelta(t, 4.0, power, 0.001)
	window := e.Resolver().PreviousDayWindow(summerDate)
	for _, q := range p.queries() {
		assert.False(t, q.From.Equal(window.Start) && slices.Equal(q.Attributes, []string{model.AttrActivePower}))
	}
}

func TestEngine_AnalyzeEntityReconcilesOnce(t *testing.T) {
	area := model.Area{Name: "viinikka-1", Service: model.ServiceViinikka, Entities: []string{"KV-0125-C01"}}
	p := &mockProvider{series: makeViinikkaSeries(constant(10))}
	p.On("Entity", mock.Anything)
	p.On("Illuminance", mock.Anything, mock.Anything, mock.Anything).Return([]switchtime.Reading{})
	repo := &countingRepo{Repository: store.NewMemory()}
	now := time.Date(2019, time.July, 10, 3, 30, 0, 0, time.UTC)
	e := newTestEngine(p, repo, &now)

	report, err := e.AnalyzeEntity(t.Context(), area, "KV-0125-C01", summerDate)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, report.Energy, 0.001)
	assert.Equal(t, 1, repo.states)

	opday := e.Resolver().OperatingDay(summerDate)
	dayQueries := 0
	for _, q := range p.queries() {
		if q.From.Equal(opday.Start) && q.Interval == model.RecentDataInterval {
			dayQueries++
		}
	}
	assert.Equal(t, 1, dayQueries)
}

func TestEstimateKey(t *testing.T) {
	assert.Equal(t, model.AttrEnergy, estimateKey("energy.L0"))
	assert.Equal(t, "intensity.L1", estimateKey("intensity.L1"))
	assert.Equal(t, model.AttrVoltage, estimateKey(model.AttrVoltage))
}

func TestRecords_HistoryRoundTrip(t *testing.T) {
	now := summerDate
	e := newTestEngine(&mockProvider{}, store.NewMemory(), &now)
	history := model.History{}
	stdev := model.Phased(map[model.Phase]float64{model.L1: 0.5, model.L2: 0.5, model.L3: 0.5})
	history.Set(model.AttrIntensity, 22, model.HourStat{
		Avg:   model.Phased(map[model.Phase]float64{model.L1: 1, model.L2: 2, model.L3: 3}),
		Stdev: stdev,
	})

	rows := e.historyMeasurements(model.ServiceTampere, "KV-0217-C01", summerDate, history)
	require.Len(t, rows, 6)
	assert.True(t, rows[0].Timestamp.Equal(time.Date(2019, time.July, 9, 22, 0, 0, 0, time.UTC)))

	back := replayHistory(model.ServiceTampere, rows)
	stat, ok := back.Hour(model.AttrIntensity, 22)
	require.True(t, ok)
	l2, _ := stat.Avg.Phase(model.L2)
	assert.InDelta(t, 2.0, l2, 0.001)
	assert.Equal(t, stdev, stat.Stdev)
}
