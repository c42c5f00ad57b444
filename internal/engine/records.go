package engine

import (
	"fmt"
	"math"
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// estimateKey is the estimates index name of a (possibly dotted) attribute.
// Energy is indexed under its parent whatever phase it is stored in.
func estimateKey(attr string) string {
	if parent, _, _ := model.SplitName(attr); parent == model.AttrEnergy {
		return model.AttrEnergy
	}
	return attr
}

// phaseLevel is the confidence of one phase component: the lower of the
// parent's and the component's.
func phaseLevel(est model.Estimates, bucket, attr string, p model.Phase) float64 {
	dotted := model.PhaseName(attr, p)
	return math.Min(est.Level(bucket, attr), est.Level(bucket, estimateKey(dotted)))
}

// valueLevel is the confidence of a whole bucket value.
func valueLevel(est model.Estimates, bucket, attr string, v model.AttributeValue) float64 {
	level := est.Level(bucket, attr)
	if v.Kind() == model.KindPhased {
		for _, p := range v.PresentPhases() {
			level = math.Min(level, phaseLevel(est, bucket, attr, p))
		}
	}
	return level
}

// dayMeasurements flattens a reconciled day into realtime rows. Values
// without a storage name are not persisted.
func (e *Engine) dayMeasurements(service model.Service, entity string, date time.Time, day *model.Day, est model.Estimates) []model.Measurement {
	var out []model.Measurement
	for bucket, attrs := range day.All() {
		ts, err := e.resolver.BucketTime(date, bucket)
		if err != nil {
			panic(fmt.Sprintf("engine: bucket %q: %v", bucket, err))
		}
		for attr, v := range attrs {
			switch v.Kind() {
			case model.KindScalar:
				name, ok := model.StorageName(service, attr)
				if !ok {
					continue
				}
				x, _ := v.Float()
				out = append(out, model.Measurement{
					Entity: entity, Name: name, Kind: model.KindRealtime,
					Value: x, Timestamp: ts, IsActual: est.Level(bucket, attr),
				})
			case model.KindPhased:
				for _, p := range v.PresentPhases() {
					name, ok := model.StorageName(service, model.PhaseName(attr, p))
					if !ok {
						continue
					}
					x, _ := v.Phase(p)
					out = append(out, model.Measurement{
						Entity: entity, Name: name, Kind: model.KindRealtime,
						Value: x, Timestamp: ts, IsActual: phaseLevel(est, bucket, attr, p),
					})
				}
			}
		}
	}
	return out
}

// replayDay rebuilds a day and its estimates from realtime rows ordered by
// timestamp.
func replayDay(service model.Service, ms []model.Measurement) (*model.Day, model.Estimates) {
	day := model.NewDay()
	est := model.Estimates{}
	for _, m := range ms {
		attr, ok := model.AttributeName(service, m.Name)
		if !ok {
			continue
		}
		bucket := calendar.Clock(m.Timestamp)
		attrs, ok := day.Get(bucket)
		if !ok {
			attrs = model.Attributes{}
			day.Set(bucket, attrs)
		}
		attrs.Put(attr, m.Value, true)
		est.Add(bucket, estimateKey(attr), m.IsActual)
	}
	return day, est
}

// historyMeasurements flattens hourly history into avg and stdev rows
// stamped at the hour within the operating day.
func (e *Engine) historyMeasurements(service model.Service, entity string, date time.Time, history model.History) []model.Measurement {
	var out []model.Measurement
	add := func(attr string, ts time.Time, kind model.MeasurementKind, v model.AttributeValue) {
		if x, ok := v.Float(); ok {
			if name, ok := model.StorageName(service, attr); ok {
				out = append(out, model.Measurement{Entity: entity, Name: name, Kind: kind, Value: x, Timestamp: ts, IsActual: 1})
			}
			return
		}
		for _, p := range v.PresentPhases() {
			x, _ := v.Phase(p)
			if name, ok := model.StorageName(service, model.PhaseName(attr, p)); ok {
				out = append(out, model.Measurement{Entity: entity, Name: name, Kind: kind, Value: x, Timestamp: ts, IsActual: 1})
			}
		}
	}

	for attr, hours := range history {
		for hour, stat := range hours {
			ts, err := e.resolver.BucketTime(date, fmt.Sprintf("%02d:00:00", hour))
			if err != nil {
				panic(fmt.Sprintf("engine: history hour %d: %v", hour, err))
			}
			add(attr, ts, model.KindAvg, stat.Avg)
			add(attr, ts, model.KindStdev, stat.Stdev)
		}
	}
	return out
}

// replayHistory rebuilds hourly history from avg and stdev rows.
func replayHistory(service model.Service, rows []model.Measurement) model.History {
	history := model.History{}
	for _, m := range rows {
		attr, ok := model.AttributeName(service, m.Name)
		if !ok {
			continue
		}
		parent, p, dotted := model.SplitName(attr)
		hour := m.Timestamp.UTC().Hour()
		stat, _ := history.Hour(parent, hour)

		target := &stat.Avg
		if m.Kind == model.KindStdev {
			target = &stat.Stdev
		}
		if dotted {
			*target = target.WithPhase(p, m.Value)
		} else {
			*target = model.Scalar(m.Value)
		}
		history.Set(parent, hour, stat)
	}
	return history
}
