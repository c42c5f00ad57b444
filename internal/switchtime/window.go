// Package switchtime detects when streetlights actually switched off and on,
// derives the expected switch windows from sun times and illuminance, and
// classifies the offset between the two.
package switchtime

import (
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// Mark is an optional offset in seconds. The zero Mark is unknown.
type Mark struct {
	Sec   int
	Valid bool
}

// At returns a known mark.
func At(sec int) Mark { return Mark{Sec: sec, Valid: true} }

// maxMark returns the larger of two marks, or the known one when only one is.
func maxMark(a, b Mark) Mark {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	case a.Sec >= b.Sec:
		return a
	}
	return b
}

// Window bounds the uncertainty of a switch instant as two UTC clock
// strings. An unknown boundary holds the missing marker.
type Window struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// MissingWindow has both boundaries unknown.
var MissingWindow = Window{Low: model.MissingClock, High: model.MissingClock}

func windowOf(low, high Mark) Window {
	return Window{
		Low:  calendar.FormatMark(low.Sec, low.Valid, true),
		High: calendar.FormatMark(high.Sec, high.Valid, true),
	}
}

// Marks converts the window into clock seconds, without season adjustment.
func (w Window) Marks() (low, high Mark) {
	return clockMark(w.Low, calendar.NoSeason), clockMark(w.High, calendar.NoSeason)
}

// String renders "low-high".
func (w Window) String() string {
	return normalizeClock(w.Low) + model.IntervalSeparator + normalizeClock(w.High)
}

// Complete reports whether both boundaries are known.
func (w Window) Complete() bool {
	return !calendar.IsMissing(w.Low) && !calendar.IsMissing(w.High)
}

func normalizeClock(clock string) string {
	if calendar.IsMissing(clock) {
		return model.MissingClock
	}
	return clock
}

func clockMark(clock string, season calendar.Season) Mark {
	sec, ok := calendar.SecondsFromTime(clock, season)
	return Mark{Sec: sec, Valid: ok}
}

// Times holds the switch-off and switch-on windows of one day.
type Times struct {
	Off Window `json:"switch_off"`
	On  Window `json:"switch_on"`
}

// Distance returns the signed gap in seconds from the value interval
// [vs, ve] to the target interval [is, ie]: negative when the value lies
// left of the target, positive when right and 0 when they overlap or touch.
// Reversed intervals are unwrapped across midnight. An unknown endpoint
// makes that side open, which can never produce a gap.
func Distance(vs, ve, is, ie Mark) int {
	for vs.Valid && ve.Valid && vs.Sec > ve.Sec {
		vs.Sec -= model.DaySeconds
	}
	for is.Valid && ie.Valid && is.Sec > ie.Sec {
		is.Sec -= model.DaySeconds
	}

	switch {
	case !vs.Valid && !ve.Valid:
		return 0
	case !vs.Valid:
		if !is.Valid || is.Sec <= ve.Sec {
			return 0
		}
		return -(is.Sec - ve.Sec)
	case !ve.Valid:
		if !ie.Valid || ie.Sec >= vs.Sec {
			return 0
		}
		return vs.Sec - ie.Sec
	case !is.Valid:
		if !ie.Valid || vs.Sec <= ie.Sec {
			return 0
		}
		return vs.Sec - ie.Sec
	case !ie.Valid:
		if ve.Sec >= is.Sec {
			return 0
		}
		return -(is.Sec - ve.Sec)
	case ve.Sec < is.Sec:
		return -(is.Sec - ve.Sec)
	case vs.Sec > ie.Sec:
		return vs.Sec - ie.Sec
	}
	return 0
}

// WindowDistance compares two clock windows with Distance.
func WindowDistance(value, target Window) int {
	vs, ve := value.Marks()
	is, ie := target.Marks()
	return Distance(vs, ve, is, ie)
}

// IntervalLength returns the window length in seconds, unwrapping across
// midnight, or -1 when a boundary is unknown.
func IntervalLength(w Window) int {
	low, high := w.Marks()
	if !low.Valid || !high.Valid {
		return -1
	}
	for low.Sec > high.Sec {
		low.Sec -= model.DaySeconds
	}
	return high.Sec - low.Sec
}
