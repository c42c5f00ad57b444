// Package stats reduces raw readings to bucket means and hourly history
// statistics, derives light-on thresholds from history, and checks values
// against the historical normal band.
package stats

import (
	mstats "github.com/montanaflynn/stats"

	"streetlight_monitor/internal/model"
)

// Mean reduces the readings of one bucket. The first value decides the
// kind: numbers average, statuses keep the first value and phased readings
// average per phase. Returns an absent value when nothing can be reduced.
func Mean(values []model.AttributeValue) model.AttributeValue {
	if len(values) == 0 {
		return model.AttributeValue{}
	}
	switch values[0].Kind() {
	case model.KindScalar:
		xs := scalars(values)
		m, err := mstats.Mean(xs)
		if err != nil {
			return model.AttributeValue{}
		}
		return model.Scalar(model.Round(m, 3))
	case model.KindStatus:
		return values[0]
	case model.KindPhased:
		out := map[model.Phase]float64{}
		for _, p := range values[0].PresentPhases() {
			m, err := mstats.Mean(phaseValues(values, p))
			if err != nil {
				continue
			}
			out[p] = model.Round(m, 3)
		}
		if len(out) == 0 {
			return model.AttributeValue{}
		}
		return model.Phased(out)
	}
	return model.AttributeValue{}
}

// Summarize reduces an hour's history samples to count, average and sample
// standard deviation. Stdev needs at least two samples.
func Summarize(values []model.AttributeValue) model.HourStat {
	stat := model.HourStat{Count: len(values)}
	if len(values) == 0 {
		return stat
	}
	switch values[0].Kind() {
	case model.KindScalar:
		avg, stdev, ok := summarize(scalars(values))
		if ok {
			stat.Avg = model.Scalar(avg)
		}
		if stdev != nil {
			stat.Stdev = model.Scalar(*stdev)
		}
	case model.KindPhased:
		avgs := map[model.Phase]float64{}
		stdevs := map[model.Phase]float64{}
		for _, p := range values[0].PresentPhases() {
			avg, stdev, ok := summarize(phaseValues(values, p))
			if !ok {
				continue
			}
			avgs[p] = avg
			if stdev != nil {
				stdevs[p] = *stdev
			}
		}
		if len(avgs) > 0 {
			stat.Avg = model.Phased(avgs)
		}
		if len(stdevs) > 0 {
			stat.Stdev = model.Phased(stdevs)
		}
	}
	return stat
}

func summarize(xs []float64) (avg float64, stdev *float64, ok bool) {
	m, err := mstats.Mean(xs)
	if err != nil {
		return 0, nil, false
	}
	avg = model.Round(m, 3)
	if len(xs) > 1 {
		sd, err := mstats.StandardDeviationSample(xs)
		if err == nil {
			sd = model.Round(sd, 3)
			stdev = &sd
		}
	}
	return avg, stdev, true
}

// SummarizeHistory reduces all collected history samples. Hours without
// samples are left out.
func SummarizeHistory(samples model.HistorySamples) model.History {
	history := model.History{}
	for attr, hours := range samples {
		for hour, values := range hours {
			if len(values) == 0 {
				continue
			}
			history.Set(attr, hour, Summarize(values))
		}
	}
	return history
}

func scalars(values []model.AttributeValue) []float64 {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if x, ok := v.Float(); ok {
			xs = append(xs, x)
		}
	}
	return xs
}

func phaseValues(values []model.AttributeValue, p model.Phase) []float64 {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if x, ok := v.Phase(p); ok {
			xs = append(xs, x)
		}
	}
	return xs
}
