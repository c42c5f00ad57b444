package engine

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/reconcile"
)

// EnergyValues returns the energy of every bucket of the day with its
// confidence.
func (e *Engine) EnergyValues(ctx context.Context, service model.Service, entity string, date time.Time) (*model.OrderedMap[model.Confidence], error) {
	el, err := e.ElectricityValues(ctx, service, entity, date)
	if err != nil {
		return nil, err
	}
	return reconcile.EnergyLevels(el.Day, el.Estimates), nil
}

// DailyEnergy returns the energy sum of the day in Wh and the number of
// hours it is estimated over. Complete days are cached.
func (e *Engine) DailyEnergy(ctx context.Context, service model.Service, entity string, date time.Time) (model.DayEnergy, error) {
	date = calendar.Midnight(date)
	cached, ok, err := e.repo.DayEnergy(ctx, entity, date)
	if err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("reading cached energy failed")
	}
	if ok {
		return cached, nil
	}

	el, err := e.ElectricityValues(ctx, service, entity, date)
	if err != nil {
		return model.DayEnergy{}, err
	}
	return e.energyFromDay(ctx, el), nil
}

// energyFromDay sums the energy of a reconciled day. The sum is cached once
// the day holds every bucket.
func (e *Engine) energyFromDay(ctx context.Context, el *Electricity) model.DayEnergy {
	levels := reconcile.EnergyLevels(el.Day, el.Estimates)
	out := sumEnergy(el.Entity, el.Date, levels)
	if levels.Len() == model.HoursInDay {
		if err := e.repo.SaveDayEnergy(ctx, out); err != nil {
			e.log.Warn().Err(err).Str("entity", el.Entity).Msg("saving daily energy failed")
		}
	}
	return out
}

func sumEnergy(entity string, date time.Time, levels *model.OrderedMap[model.Confidence]) model.DayEnergy {
	values := make([]float64, 0, levels.Len())
	actual := make([]float64, 0, levels.Len())
	for _, c := range levels.All() {
		x, _ := c.Value.Float()
		values = append(values, x)
		actual = append(actual, c.Level)
	}
	return model.DayEnergy{
		Entity:         entity,
		Date:           date,
		Value:          floats.Sum(values),
		EstimatedHours: model.HoursInDay - floats.Sum(actual),
	}
}

// AreaDailyEnergy sums the daily energy of every entity of the area. The
// estimated hours are summed as well.
func (e *Engine) AreaDailyEnergy(ctx context.Context, area model.Area, date time.Time) (model.DayEnergy, error) {
	out := model.DayEnergy{Entity: area.Name, Date: calendar.Midnight(date)}
	for _, entity := range area.Entities {
		de, err := e.DailyEnergy(ctx, area.Service, entity, date)
		if err != nil {
			return model.DayEnergy{}, fmt.Errorf("energy of %s: %w", entity, err)
		}
		out.Value += de.Value
		out.EstimatedHours += de.EstimatedHours
	}
	return out, nil
}

// FormatEnergy renders Wh with a magnitude prefix.
func FormatEnergy(wh float64) string {
	switch {
	case wh < 1e3:
		return fmt.Sprintf("%.0f Wh", wh)
	case wh < 1e6:
		return fmt.Sprintf("%.1f kWh", wh/1e3)
	case wh < 1e9:
		return fmt.Sprintf("%.2f MWh", wh/1e6)
	}
	return fmt.Sprintf("%.3f GWh", wh/1e9)
}
