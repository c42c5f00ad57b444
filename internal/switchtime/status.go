package switchtime

import (
	"sort"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// Status is the light state read from one observation.
type Status string

const (
	StatusNone    Status = ""
	StatusOn      Status = "on"
	StatusOff     Status = "off"
	StatusUnknown Status = "unknown"
)

// LightStatus decides whether the light was on from a value and its
// threshold. Statuses compare for equality. A phased value is on when any
// phase reaches its threshold, and off only when some thresholded phase was
// read and none reached it.
func LightStatus(obs model.Observation) Status {
	v, limit := obs.Value, obs.Limit
	switch v.Kind() {
	case model.KindStatus:
		s, _ := v.Text()
		if l, ok := limit.Text(); ok && s == l {
			return StatusOn
		}
		return StatusOff

	case model.KindPhased:
		if limit.Kind() != model.KindPhased {
			return StatusUnknown
		}
		found := false
		for _, p := range v.PresentPhases() {
			pl, ok := limit.Phase(p)
			if !ok {
				continue
			}
			x, _ := v.Phase(p)
			if x >= pl {
				return StatusOn
			}
			found = x >= 0
		}
		if found {
			return StatusOff
		}
		return StatusUnknown

	case model.KindScalar:
		x, _ := v.Float()
		if x < 0 {
			return StatusUnknown
		}
		if l, ok := limit.Float(); ok && x >= l {
			return StatusOn
		}
		return StatusOff
	}
	return StatusUnknown
}

func sortedAttributes(b model.AnnotatedBucket) []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RealSwitchTimes scans an annotated day for the actual switch instants.
// Switch-off is the window between the last bucket seen on and the first
// bucket seen off, scanning forward from the operating-day start. Switch-on
// is the symmetric scan backward from the end of the day.
func RealSwitchTimes(day *model.AnnotatedDay, season calendar.Season) Times {
	var offLow, offHigh Mark
	var prev Mark
forward:
	for bucket, attrs := range day.All() {
		cur := clockMark(bucket, season)
		for _, name := range sortedAttributes(attrs) {
			switch LightStatus(attrs[name]) {
			case StatusOff:
				offLow, offHigh = prev, cur
				break forward
			case StatusOn:
				prev = cur
			}
		}
	}

	var onLow, onHigh Mark
	prev = Mark{}
backward:
	for bucket, attrs := range day.Backward() {
		cur := clockMark(bucket, season)
		for _, name := range sortedAttributes(attrs) {
			switch LightStatus(attrs[name]) {
			case StatusOff:
				onLow, onHigh = cur, prev
				break backward
			case StatusOn:
				prev = cur
			}
		}
	}

	return Times{Off: windowOf(offLow, offHigh), On: windowOf(onLow, onHigh)}
}
