package switchtime

import (
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// Reading is one illuminance sample of the area sensor.
type Reading struct {
	Time  time.Time
	Value float64
}

// IlluminanceLimits are the sensor levels at which lights should switch.
type IlluminanceLimits struct {
	Off float64 `json:"off"`
	On  float64 `json:"on"`
}

// LimitsOf returns the area's limits with defaults applied.
func LimitsOf(area model.Area) IlluminanceLimits {
	off, on := area.IlluminanceLimits()
	return IlluminanceLimits{Off: off, On: on}
}

// SunWindows holds the sun-bounded search windows, in seasonal seconds.
type SunWindows struct {
	Off [2]int
	On  [2]int
}

// NewSunWindows bounds switch-off around sunrise and switch-on around sunset.
func NewSunWindows(sunrise, sunset string, season calendar.Season) (SunWindows, bool) {
	rise, okR := calendar.SecondsFromTime(sunrise, season)
	set, okS := calendar.SecondsFromTime(sunset, season)
	if !okR || !okS {
		return SunWindows{}, false
	}
	const w = model.ExpectedSwitchWindowSecs
	return SunWindows{
		Off: [2]int{rise - w, rise + w},
		On:  [2]int{set - w, set + w},
	}, true
}

// ExpectedSwitchTimes narrows the sun windows using the illuminance
// readings, which must be in time order. Switch-off ends at the first
// reading inside the morning window at or above the off limit, switch-on at
// the first reading inside the evening window at or below the on limit.
// Passing the morning window without a crossing closes switch-off at the
// window end. For past days any boundary still unknown falls back to the
// window limit.
func ExpectedSwitchTimes(readings []Reading, sun SunWindows, season calendar.Season, limits IlluminanceLimits, past bool) Times {
	var offLow, offHigh, onLow, onHigh, prev Mark

	for _, r := range readings {
		cur, ok := calendar.SecondsFromTime(calendar.Clock(r.Time), season)
		if !ok {
			continue
		}

		if !offHigh.Valid && inWindow(cur, sun.Off) && r.Value >= limits.Off {
			offLow, offHigh = maxMark(prev, At(sun.Off[0])), At(cur)
			continue
		} else if !offHigh.Valid && cur > sun.Off[1] {
			offLow, offHigh = maxMark(prev, At(sun.Off[0])), At(sun.Off[1])
		}

		if !onHigh.Valid && inWindow(cur, sun.On) && r.Value <= limits.On {
			onLow, onHigh = maxMark(prev, At(sun.On[0])), At(cur)
		}

		if offHigh.Valid && onHigh.Valid {
			break
		}
		prev = At(cur)
	}

	if past {
		offLow, offHigh = fallback(offLow, sun.Off[0]), fallback(offHigh, sun.Off[1])
		onLow, onHigh = fallback(onLow, sun.On[0]), fallback(onHigh, sun.On[1])
	}
	return Times{Off: windowOf(offLow, offHigh), On: windowOf(onLow, onHigh)}
}

func inWindow(sec int, w [2]int) bool {
	return w[0] <= sec && sec <= w[1]
}

func fallback(m Mark, limit int) Mark {
	if m.Valid {
		return m
	}
	return At(limit)
}
