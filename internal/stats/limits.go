package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// Threshold bands by attribute kind.
const (
	current3PhaseMin   = 3.0
	current3PhaseMax   = 15.0
	current1PhaseMin   = 0.1
	current1PhaseMax   = 0.25
	powerMin           = 2.0
	powerMax           = 8.0
	voltageMin         = 1.0
	voltageMax         = 10.0
	illuminanceMin     = 0.1
	illuminanceMax     = 0.25
	powerDefault       = voltageMin
	statusOn           = "on"
	divisorThreePhase  = 5.0
	divisorSinglePhase = 3.0
	divisorVoltage     = 5.0
)

// MaxAverage returns the largest hourly average, per phase for phased
// attributes. The phases come from the first hour with an average.
func MaxAverage(hours map[int]model.HourStat) model.AttributeValue {
	var avgs []model.AttributeValue
	for h := range model.HoursInDay {
		if s, ok := hours[h]; ok && s.Avg.Present() {
			avgs = append(avgs, s.Avg)
		}
	}
	if len(avgs) == 0 {
		return model.AttributeValue{}
	}

	switch avgs[0].Kind() {
	case model.KindScalar:
		xs := scalars(avgs)
		if len(xs) == 0 {
			return model.AttributeValue{}
		}
		return model.Scalar(floats.Max(xs))
	case model.KindPhased:
		out := map[model.Phase]float64{}
		for _, p := range avgs[0].PresentPhases() {
			if xs := phaseValues(avgs, p); len(xs) > 0 {
				out[p] = floats.Max(xs)
			}
		}
		return model.Phased(out)
	}
	return model.AttributeValue{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func scaled(maxAvg model.AttributeValue, divisor, lo, hi, def float64) model.AttributeValue {
	x, ok := maxAvg.Float()
	if !ok || x == 0 {
		return model.Scalar(def)
	}
	return model.Scalar(clamp(model.Round(x/divisor, 3), lo, hi))
}

// Limit returns the threshold at or above which attr indicates that the
// light is on, derived from the attribute's hourly history. Tampere
// voltage has no threshold on any phase. Unknown attributes return an
// absent value.
func Limit(service model.Service, attr string, hours map[int]model.HourStat) model.AttributeValue {
	maxAvg := MaxAverage(hours)
	switch attr {
	case model.AttrIntensity:
		if service == model.ServiceTampere {
			limit := map[model.Phase]float64{}
			for _, p := range model.Phases {
				limit[p] = current3PhaseMin
				if x, ok := maxAvg.Phase(p); ok {
					limit[p] = clamp(model.Round(x/divisorThreePhase, 3), current3PhaseMin, current3PhaseMax)
				}
			}
			return model.Phased(limit)
		}
		return scaled(maxAvg, divisorSinglePhase, current1PhaseMin, current1PhaseMax, current1PhaseMin)
	case model.AttrActivePower:
		return scaled(maxAvg, divisorSinglePhase, powerMin, powerMax, powerDefault)
	case model.AttrVoltage:
		if service == model.ServiceTampere {
			return model.Phased(nil)
		}
		return scaled(maxAvg, divisorVoltage, voltageMin, voltageMax, voltageMin)
	case model.AttrIlluminanceLevel:
		return scaled(maxAvg, divisorSinglePhase, illuminanceMin, illuminanceMax, illuminanceMin)
	case model.AttrPowerState:
		return model.Status(statusOn)
	}
	return model.AttributeValue{}
}

// WithinLimits reports whether obs lies within StdsFromAverage standard
// deviations of its hour's average. Stdev is floored at MinStdev. Phased
// values are checked per phase; a value without history is within limits.
func WithinLimits(obs model.Observation) bool {
	avg, stdev := obs.History.Avg, obs.History.Stdev
	if !obs.Value.Present() || !avg.Present() || !stdev.Present() {
		return true
	}

	if obs.Value.Kind() == model.KindPhased {
		for _, p := range obs.Value.PresentPhases() {
			x, _ := obs.Value.Phase(p)
			a, okA := avg.Phase(p)
			s, okS := stdev.Phase(p)
			if okA && okS && !within(x, a, s) {
				return false
			}
		}
		return true
	}

	x, okX := obs.Value.Float()
	a, okA := avg.Float()
	s, okS := stdev.Float()
	if !okX || !okA || !okS {
		return true
	}
	return within(x, a, s)
}

func within(x, avg, stdev float64) bool {
	return math.Abs(x-avg) <= model.StdsFromAverage*math.Max(stdev, model.MinStdev)
}

// CombineWithHistory annotates every bucket value with its hour's history
// and the attribute threshold. Thresholds are computed once per attribute.
func CombineWithHistory(service model.Service, day *model.Day, history model.History) *model.AnnotatedDay {
	out := model.NewOrderedMap[model.AnnotatedBucket]()
	limits := map[string]model.AttributeValue{}

	for bucket, attrs := range day.All() {
		hour := bucketHour(bucket)
		annotated := make(model.AnnotatedBucket, len(attrs))
		for attr, v := range attrs {
			limit, ok := limits[attr]
			if !ok {
				limit = Limit(service, attr, history[attr])
				limits[attr] = limit
			}
			stat, _ := history.Hour(attr, hour)
			annotated[attr] = model.Observation{Value: v, History: stat, Limit: limit}
		}
		out.Set(bucket, annotated)
	}
	return out
}

func bucketHour(bucket string) int {
	h, _, _, err := calendar.ParseClock(bucket)
	if err != nil {
		panic("stats: malformed bucket " + bucket)
	}
	return h
}
