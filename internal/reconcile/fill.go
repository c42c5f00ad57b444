package reconcile

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"streetlight_monitor/internal/model"
)

// PreviousValue looks up the latest value of a (possibly dotted) attribute
// observed shortly before the operating day starts.
type PreviousValue func(attr string) (float64, bool)

// AddMissingHours returns a day holding a bucket for every hour in hours,
// in that order. Existing bucket values are kept; missing buckets are empty.
// Buckets outside hours are dropped.
func AddMissingHours(day *model.Day, hours []int) *model.Day {
	out := model.NewDay()
	for _, h := range hours {
		bucket := fmt.Sprintf("%02d:00:00", h)
		attrs, ok := day.Get(bucket)
		if !ok || attrs == nil {
			attrs = model.Attributes{}
		}
		out.Set(bucket, attrs)
	}
	return out
}

// FillAttributes fills every missing value of names in bucket order:
//   - a missing first bucket takes the previous-day value when one exists,
//     otherwise the first later value;
//   - gaps between two values are linearly interpolated;
//   - a trailing gap carries the last value forward.
//
// Names may be dotted phase components. Every filled value is recorded
// with confidence 0.
func FillAttributes(day *model.Day, names []string, previous PreviousValue) model.Estimates {
	est := model.Estimates{}
	keys := day.Keys()
	pending := make(map[string][]int, len(names))

	for i, bucket := range keys {
		_, attrs := day.At(i)
		for _, name := range names {
			v, ok := attrs.Lookup(name)
			if !ok {
				if i == 0 && previous != nil {
					if pv, found := previous(name); found {
						attrs.Put(name, pv, true)
						est.Add(bucket, name, 0)
						continue
					}
				}
				pending[name] = append(pending[name], i)
				continue
			}

			for _, mi := range pending[name] {
				x := v
				if mi > 0 {
					_, before := day.At(mi - 1)
					prev, _ := before.Lookup(name)
					x = (v-prev)/float64(i-mi+1) + prev
				}
				_, missing := day.At(mi)
				missing.Put(name, x, true)
				est.Add(keys[mi], name, 0)
			}
			pending[name] = nil
		}
	}

	for _, name := range names {
		for _, mi := range pending[name] {
			if mi == 0 {
				continue
			}
			_, before := day.At(mi - 1)
			prev, ok := before.Lookup(name)
			if !ok {
				continue
			}
			_, missing := day.At(mi)
			missing.Put(name, prev, true)
			est.Add(keys[mi], name, 0)
		}
	}

	return est
}

// FillPhases completes partially present 3-phase attributes with the mean
// of the present phases. A voltage attribute with no phase present gets the
// nominal voltage on every phase. Filled phases get confidence 0.
func FillPhases(day *model.Day, attrs []string) model.Estimates {
	est := model.Estimates{}
	for bucket, values := range day.All() {
		for _, attr := range attrs {
			v := values[attr]
			if v.Kind() != model.KindPhased && v.Present() {
				continue
			}
			if v.HasAllPhases() {
				continue
			}

			present := v.PresentPhases()
			var fill float64
			switch {
			case len(present) > 0:
				xs := make([]float64, len(present))
				for i, p := range present {
					xs[i], _ = v.Phase(p)
				}
				fill = stat.Mean(xs, nil)
			case attr == model.AttrVoltage:
				fill = model.NominalVoltage
			default:
				continue
			}

			for _, p := range model.Phases {
				if _, ok := v.Phase(p); ok {
					continue
				}
				name := model.PhaseName(attr, p)
				values.Put(name, fill, true)
				est.Add(bucket, name, 0)
			}
		}
	}
	return est
}

// HasAll reports whether every bucket holds a value for every name.
func HasAll(day *model.Day, names []string) bool {
	for _, attrs := range day.All() {
		for _, name := range names {
			if _, ok := attrs.Lookup(name); !ok {
				return false
			}
		}
	}
	return true
}
