package model

import "time"

// Attributes holds the values of one bucket keyed by attribute name.
// Phase components live nested under their parent attribute.
type Attributes map[string]AttributeValue

// Lookup resolves plain and dotted names ("voltage.L2").
func (a Attributes) Lookup(name string) (float64, bool) {
	parent, phase, dotted := SplitName(name)
	v, ok := a[parent]
	if !ok {
		return 0, false
	}
	if dotted {
		return v.Phase(phase)
	}
	return v.Float()
}

// Put stores x under a plain or dotted name. With replace false an
// existing value is kept.
func (a Attributes) Put(name string, x float64, replace bool) {
	parent, phase, dotted := SplitName(name)
	if !dotted {
		if _, ok := a[parent]; ok && !replace {
			return
		}
		a[parent] = Scalar(x)
		return
	}
	cur := a[parent]
	if _, ok := cur.Phase(phase); ok && !replace {
		return
	}
	a[parent] = cur.WithPhase(phase, x)
}

// Clone returns a shallow copy. AttributeValue is immutable.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Day is one operating day of buckets keyed by "HH:MM:SS", in bucket order.
type Day = OrderedMap[Attributes]

func NewDay() *Day { return NewOrderedMap[Attributes]() }

// HourStat summarises the history samples of one hour of day.
// Avg is absent without samples; Stdev is absent below two samples.
type HourStat struct {
	Count int            `json:"count"`
	Avg   AttributeValue `json:"avg"`
	Stdev AttributeValue `json:"stdev"`
}

// History maps attribute name to hour of day (0-23) to its statistics.
type History map[string]map[int]HourStat

// Hour returns the statistics for attr at hour, if any.
func (h History) Hour(attr string, hour int) (HourStat, bool) {
	s, ok := h[attr][hour]
	return s, ok
}

// Set stores the statistics for attr at hour.
func (h History) Set(attr string, hour int, s HourStat) {
	if h[attr] == nil {
		h[attr] = make(map[int]HourStat, HoursInDay)
	}
	h[attr][hour] = s
}

// HistorySamples collects raw history values per attribute and hour of day.
type HistorySamples map[string]*[HoursInDay][]AttributeValue

func (h HistorySamples) Add(attr string, hour int, v AttributeValue) {
	hours, ok := h[attr]
	if !ok {
		hours = new([HoursInDay][]AttributeValue)
		h[attr] = hours
	}
	hours[hour] = append(hours[hour], v)
}

// Observation is a bucket value annotated with its hour's history and the
// attribute's on/off threshold.
type Observation struct {
	Value   AttributeValue `json:"value"`
	History HourStat       `json:"history"`
	Limit   AttributeValue `json:"limit"`
}

// AnnotatedBucket is one bucket of an AnnotatedDay.
type AnnotatedBucket map[string]Observation

// AnnotatedDay is a reconciled day combined with history.
type AnnotatedDay = OrderedMap[AnnotatedBucket]

// Sample is one normalised provider instant.
type Sample struct {
	Time   time.Time
	Values Attributes
}
