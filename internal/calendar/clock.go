package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"streetlight_monitor/internal/model"
)

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

// IsMissing reports whether clock is one of the unknown-time markers.
func IsMissing(clock string) bool {
	switch clock {
	case "", "None", model.MissingClock, model.MissingClockNoSeconds:
		return true
	}
	return false
}

// ParseClock splits "HH:MM" or "HH:MM:SS" into its parts.
func ParseClock(clock string) (h, m, s int, err error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid clock %q", clock)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid clock %q: %w", clock, err)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// SecondsFromTime converts a UTC clock string into seconds from the
// operating-day start of season. Hours at or after the limit hour belong to
// the previous UTC day and come out negative. With NoSeason the clock is
// converted as is. Missing markers and malformed clocks return false.
func SecondsFromTime(clock string, season Season) (int, bool) {
	if IsMissing(clock) {
		return 0, false
	}
	h, m, s, err := ParseClock(clock)
	if err != nil {
		return 0, false
	}
	if season != NoSeason {
		if lh := season.LimitHour(); lh > 0 && lh <= h {
			h -= 24
		}
	}
	return h*model.HourSeconds + m*60 + s, true
}

// IntervalStart returns the start of the interval-seconds bucket that clock
// falls in, as "HH:MM:SS" on the UTC clock.
func IntervalStart(clock string, interval int, season Season) string {
	sec, ok := SecondsFromTime(clock, season)
	if !ok {
		return model.MissingClock
	}
	lh := season.LimitHour()
	start := floorMod(floorDiv(sec, interval)*interval+model.DaySeconds-lh*model.HourSeconds, model.DaySeconds)
	hour := (start/model.HourSeconds + lh) % 24
	return fmt.Sprintf("%02d:%02d:%02d", hour, (start/60)%60, start%60)
}

// FormatSeconds renders seconds from midnight as "HH:MM:SS" or "HH:MM",
// wrapping values outside a single day.
func FormatSeconds(sec int, withSeconds bool) string {
	sec = floorMod(sec, model.DaySeconds)
	if withSeconds {
		return fmt.Sprintf("%02d:%02d:%02d", sec/model.HourSeconds, (sec/60)%60, sec%60)
	}
	return fmt.Sprintf("%02d:%02d", sec/model.HourSeconds, (sec/60)%60)
}

// FormatMark renders an optional seconds value, using the missing marker
// when ok is false.
func FormatMark(sec int, ok, withSeconds bool) string {
	if !ok {
		if withSeconds {
			return model.MissingClock
		}
		return model.MissingClockNoSeconds
	}
	return FormatSeconds(sec, withSeconds)
}

// IntervalEnd returns the clock string length seconds after start.
func IntervalEnd(start string, length int, withSeconds bool) string {
	sec, ok := SecondsFromTime(start, NoSeason)
	return FormatMark(sec+length, ok, withSeconds)
}

// Clock formats the UTC wall clock of t as "HH:MM:SS".
func Clock(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// LocalClock converts a UTC clock string on date into Finnish local time.
// Missing markers pass through.
func LocalClock(clock string, date time.Time, withSeconds bool) string {
	if IsMissing(clock) {
		return FormatMark(0, false, withSeconds)
	}
	h, m, s, err := ParseClock(clock)
	if err != nil {
		return FormatMark(0, false, withSeconds)
	}
	d := date.UTC()
	local := ToLocal(time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, time.UTC))
	return FormatSeconds(local.Hour()*model.HourSeconds+local.Minute()*60+local.Second(), withSeconds)
}
