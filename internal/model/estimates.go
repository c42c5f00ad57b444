package model

import "math"

// Estimates records, per bucket, which attributes were not directly observed
// and their confidence. Attributes without an entry count as observed.
type Estimates map[string]map[string]float64

// Add records level for (bucket, attr) when it is below the estimation limit.
// The first recorded level is kept.
func (e Estimates) Add(bucket, attr string, level float64) {
	if level >= EstimationLimitHigh {
		return
	}
	if _, ok := e[bucket][attr]; ok {
		return
	}
	e.set(bucket, attr, level)
}

// Lower records level for (bucket, attr) keeping the minimum with any
// existing entry.
func (e Estimates) Lower(bucket, attr string, level float64) {
	if level >= EstimationLimitHigh {
		return
	}
	if cur, ok := e[bucket][attr]; ok {
		level = math.Min(cur, level)
	}
	e.set(bucket, attr, level)
}

func (e Estimates) set(bucket, attr string, level float64) {
	if e[bucket] == nil {
		e[bucket] = make(map[string]float64)
	}
	e[bucket][attr] = level
}

// Level returns the recorded confidence, 1.0 when none was recorded.
func (e Estimates) Level(bucket, attr string) float64 {
	if level, ok := e[bucket][attr]; ok {
		return level
	}
	return 1.0
}

// Has reports whether (bucket, attr) was estimated.
func (e Estimates) Has(bucket, attr string) bool {
	_, ok := e[bucket][attr]
	return ok
}

// Merge folds other into e. Pairs present in both keep the minimum.
func (e Estimates) Merge(other Estimates) Estimates {
	for bucket, attrs := range other {
		for attr, level := range attrs {
			if cur, ok := e[bucket][attr]; ok {
				level = math.Min(cur, level)
			}
			e.set(bucket, attr, level)
		}
	}
	return e
}

// MergeEstimates combines any number of passes into a new index.
func MergeEstimates(passes ...Estimates) Estimates {
	out := Estimates{}
	for _, p := range passes {
		out.Merge(p)
	}
	return out
}
