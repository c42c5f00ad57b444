package engine

import (
	"streetlight_monitor/internal/model"
)

// MissingDataWarnings derives the data warning flags of a reconciled day.
// A bucket is missing when every value in it is estimated; an empty bucket
// counts as missing. The day is not connected when no value reaches the
// low estimation limit.
func MissingDataWarnings(day *model.Day, est model.Estimates) model.DateWarning {
	w := model.DateWarning{NotConnected: true}
	missing := 0

	for bucket, attrs := range day.All() {
		estimated := true
		for attr, v := range attrs {
			for _, name := range fullNames(attr, v) {
				if est.Level(bucket, name) >= model.EstimationLimitLow {
					w.NotConnected = false
				}
				if !est.Has(bucket, name) {
					estimated = false
				}
			}
		}
		if estimated {
			missing++
		}
	}

	w.MissingDataOne = missing >= 1
	w.MissingDataHalf = float64(missing) >= float64(day.Len())/2
	return w
}

// fullNames lists the estimate keys covering one bucket value.
func fullNames(attr string, v model.AttributeValue) []string {
	if v.Kind() != model.KindPhased {
		return []string{attr}
	}
	phases := v.PresentPhases()
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		names = append(names, estimateKey(model.PhaseName(attr, p)))
	}
	return names
}

// NoWarnings reports whether a warning record exists with no flag set.
func NoWarnings(w *model.DateWarning) bool {
	return w != nil && !w.Any()
}
