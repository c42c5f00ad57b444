// Package sun computes sunrise and sunset for the expected switch windows.
package sun

import (
	"time"

	gosunrise "github.com/nathan-osman/go-sunrise"

	"streetlight_monitor/internal/calendar"
)

// Tampere is the default location.
const (
	DefaultLatitude  = 61.4978
	DefaultLongitude = 23.7610
)

// Location computes sun times at a fixed point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Default returns the Tampere location.
func Default() Location {
	return Location{Latitude: DefaultLatitude, Longitude: DefaultLongitude}
}

// Times returns sunrise and sunset of date as UTC "HH:MM:SS" clocks.
// Near the polar circle the sun may not set or rise; go-sunrise then
// returns zero times, reported here as ok=false.
func (l Location) Times(date time.Time) (sunrise, sunset string, ok bool) {
	d := date.UTC()
	rise, set := gosunrise.SunriseSunset(l.Latitude, l.Longitude, d.Year(), d.Month(), d.Day())
	if rise.IsZero() || set.IsZero() {
		return "", "", false
	}
	return calendar.Clock(rise), calendar.Clock(set), true
}
