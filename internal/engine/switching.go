package engine

import (
	"context"
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/reconcile"
	"streetlight_monitor/internal/stats"
	"streetlight_monitor/internal/sun"
	"streetlight_monitor/internal/switchtime"
)

// RealSwitchTimes returns when the lights of entity actually switched off
// and on. Stored windows are reused; otherwise the switch attributes are
// fetched at minute resolution and judged against the entity history.
func (e *Engine) RealSwitchTimes(ctx context.Context, service model.Service, entity string, date time.Time, history model.History) switchtime.Times {
	return e.realSwitchTimes(ctx, service, entity, date, history, nil)
}

// realSwitchTimes uses day when it is given instead of fetching the switch
// attributes of the entity.
func (e *Engine) realSwitchTimes(ctx context.Context, service model.Service, entity string, date time.Time, history model.History, day *model.Day) switchtime.Times {
	date = calendar.Midnight(date)
	if times, ok := e.storedSwitchTimes(ctx, entity, date); ok {
		return times
	}

	if day == nil {
		q := e.query(service, entity, service.Info().SwitchAttributes, e.resolver.OperatingDay(date).Start, e.dayEnd(date))
		q.Interval = model.SwitchTimeInterval
		samples := e.provider.Entity(ctx, q)
		day = reconcile.Split(samples, date, e.resolver, model.SwitchTimeInterval).Day
	}

	times := switchtime.RealSwitchTimes(stats.CombineWithHistory(service, day, history), e.resolver.Season(date))
	if e.dayComplete(date) {
		e.saveSwitchTimes(ctx, entity, date, times)
	}
	return times
}

// areaSwitchDays fetches the switch attributes of every entity of area
// with one type query. It returns nil for single-entity areas and when the
// first entity already has stored switch times, in which case the entities
// are handled one by one. Entities missing from the answer get an empty day.
func (e *Engine) areaSwitchDays(ctx context.Context, area model.Area, date time.Time) map[string]*model.Day {
	if len(area.Entities) < 2 || area.EntityType == "" {
		return nil
	}
	if _, ok := e.storedSwitchTimes(ctx, area.Entities[0], date); ok {
		return nil
	}

	info := area.Service.Info()
	samples := e.provider.Types(ctx, provider.TypeQuery{
		Service:    area.Service,
		EntityType: area.EntityType,
		Entities:   area.Entities,
		Attributes: info.SwitchAttributes,
		From:       e.resolver.OperatingDay(date).Start,
		To:         e.dayEnd(date),
		Aggregate:  info.Aggregated,
		Interval:   model.SwitchTimeInterval,
	})
	splits := reconcile.SplitTypes(samples, date, e.resolver, model.SwitchTimeInterval)

	days := make(map[string]*model.Day, len(area.Entities))
	for _, entity := range area.Entities {
		day := model.NewDay()
		if split, ok := splits[entity]; ok && split.Day != nil {
			day = split.Day
		}
		days[entity] = day
	}
	e.log.Debug().
		Str("area", area.Name).
		Int("entities", len(splits)).
		Msg("fetched switch data by type")
	return days
}

// ExpectedSwitchTimes returns the switch windows an area should have had,
// from its illuminance sensor bounded by sunrise and sunset.
func (e *Engine) ExpectedSwitchTimes(ctx context.Context, area model.Area, date time.Time) switchtime.Times {
	date = calendar.Midnight(date)
	if times, ok := e.storedSwitchTimes(ctx, area.Name, date); ok {
		return times
	}

	season := e.resolver.Season(date)
	rise, set, ok := e.sunFor(area).Times(date)
	if !ok {
		e.log.Warn().Str("area", area.Name).Str("date", calendar.FormatDate(date)).Msg("no sunrise or sunset")
		return switchtime.Times{Off: switchtime.MissingWindow, On: switchtime.MissingWindow}
	}
	windows, ok := switchtime.NewSunWindows(rise, set, season)
	if !ok {
		return switchtime.Times{Off: switchtime.MissingWindow, On: switchtime.MissingWindow}
	}

	device := area.IlluminanceDevice
	if device == "" {
		device = area.Service.Info().DefaultIlluminanceDevice
	}
	readings := e.provider.Illuminance(ctx, area.Service, device, e.resolver.OperatingDay(date))

	past := e.dayComplete(date)
	times := switchtime.ExpectedSwitchTimes(readings, windows, season, switchtime.LimitsOf(area), past)
	if past {
		e.saveSwitchTimes(ctx, area.Name, date, times)
	}
	return times
}

func (e *Engine) sunFor(area model.Area) sun.Location {
	if area.Latitude != 0 || area.Longitude != 0 {
		return sun.Location{Latitude: area.Latitude, Longitude: area.Longitude}
	}
	return e.sun
}

// storedSwitchTimes needs both the off and the on record.
func (e *Engine) storedSwitchTimes(ctx context.Context, owner string, date time.Time) (switchtime.Times, bool) {
	records, err := e.repo.SwitchRecords(ctx, owner, date)
	if err != nil {
		e.log.Warn().Err(err).Str("owner", owner).Msg("reading switch times failed")
		return switchtime.Times{}, false
	}
	var times switchtime.Times
	var off, on bool
	for _, r := range records {
		w := switchtime.Window{Low: clockOrMissing(r.Low), High: clockOrMissing(r.High)}
		switch r.Type {
		case model.SwitchOff:
			times.Off, off = w, true
		case model.SwitchOn:
			times.On, on = w, true
		}
	}
	return times, off && on
}

func (e *Engine) saveSwitchTimes(ctx context.Context, owner string, date time.Time, times switchtime.Times) {
	records := []model.SwitchRecord{
		{Entity: owner, Date: date, Type: model.SwitchOff, Low: clockOrEmpty(times.Off.Low), High: clockOrEmpty(times.Off.High)},
		{Entity: owner, Date: date, Type: model.SwitchOn, Low: clockOrEmpty(times.On.Low), High: clockOrEmpty(times.On.High)},
	}
	for _, rec := range records {
		if err := e.repo.SaveSwitchRecord(ctx, rec); err != nil {
			e.log.Warn().Err(err).Str("owner", owner).Msg("saving switch times failed")
		}
	}
}

func clockOrMissing(clock string) string {
	if clock == "" {
		return model.MissingClock
	}
	return clock
}

func clockOrEmpty(clock string) string {
	if calendar.IsMissing(clock) {
		return ""
	}
	return clock
}
