package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"streetlight_monitor/internal/model"
)

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateCache memoises timestamp parsing at one-second resolution. Timestamps
// without a zone are UTC.
type DateCache struct {
	mu     sync.RWMutex
	parsed map[string]time.Time
}

func NewDateCache() *DateCache {
	return &DateCache{parsed: make(map[string]time.Time)}
}

// Parse parses a provider timestamp or a YYYY-MM-DD date. Fractional
// seconds are dropped.
func (c *DateCache) Parse(s string) (time.Time, error) {
	key := stripFraction(s)

	c.mu.RLock()
	t, ok := c.parsed[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := parseTimestamp(key)
	if err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	c.parsed[key] = t
	c.mu.Unlock()
	return t, nil
}

// Len returns the number of cached entries.
func (c *DateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.parsed)
}

// Reset clears the cache.
func (c *DateCache) Reset() {
	c.mu.Lock()
	c.parsed = make(map[string]time.Time)
	c.mu.Unlock()
}

// stripFraction removes ".123" from a timestamp while keeping any zone suffix.
func stripFraction(s string) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	end := dot + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:dot] + s[end:]
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Resolver answers operating-day questions for dates. It is safe for
// concurrent use.
type Resolver struct {
	cache *DateCache
}

// NewResolver returns a resolver backed by cache. A nil cache gets a fresh one.
func NewResolver(cache *DateCache) *Resolver {
	if cache == nil {
		cache = NewDateCache()
	}
	return &Resolver{cache: cache}
}

// Cache exposes the underlying parse cache.
func (r *Resolver) Cache() *DateCache { return r.cache }

// Parse parses a timestamp through the cache.
func (r *Resolver) Parse(s string) (time.Time, error) {
	return r.cache.Parse(s)
}

// ParseDate parses "YYYY-MM-DD" into midnight UTC.
func (r *Resolver) ParseDate(date string) (time.Time, error) {
	t, err := r.cache.Parse(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date: %w", err)
	}
	return Midnight(t), nil
}

// Midnight truncates t to 00:00 UTC of its day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Season is the season in effect at the start of date.
func (r *Resolver) Season(date time.Time) Season {
	return SeasonOf(Midnight(date))
}

// OperatingDay returns [start, end) of the operating day of date. The day
// starts at the limit hour of the previous UTC day.
func (r *Resolver) OperatingDay(date time.Time) model.TimeRange {
	d := Midnight(date)
	lh := r.Season(d).LimitHour()
	start := d.Add(time.Duration(lh) * time.Hour)
	if lh > 0 {
		start = start.AddDate(0, 0, -1)
	}
	return model.TimeRange{Start: start, End: start.Add(24 * time.Hour)}
}

// HistoryLimit is the instant before which readings count as history.
func (r *Resolver) HistoryLimit(date time.Time) time.Time {
	return r.OperatingDay(date).Start
}

// PreviousDayWindow is the window searched for a value to seed the first
// bucket of date: the last hours before the operating day starts.
func (r *Resolver) PreviousDayWindow(date time.Time) model.TimeRange {
	end := r.OperatingDay(date).Start
	return model.TimeRange{
		Start: end.Add(-model.PreviousDayCheckHours * time.Hour),
		End:   end,
	}
}

// HourRange lists the UTC hours of date's operating day that have started
// before now (truncated to the hour), in bucket order.
func (r *Resolver) HourRange(date, now time.Time) []int {
	day := r.OperatingDay(date)
	now = now.UTC().Truncate(time.Hour)
	low := day.Start.Hour()

	var hours []int
	switch {
	case !now.Before(day.End):
		for i := range model.HoursInDay {
			hours = append(hours, (low+i)%24)
		}
	case now.After(day.Start):
		if now.Day() == day.End.Day() {
			for h := low; h < 24; h++ {
				hours = append(hours, h)
			}
			for h := 0; h < now.Hour(); h++ {
				hours = append(hours, h)
			}
		} else {
			for h := low; h < now.Hour(); h++ {
				hours = append(hours, h)
			}
		}
	}
	return hours
}

// Bucket returns the interval bucket of t on the UTC clock.
func (r *Resolver) Bucket(t time.Time, interval int) string {
	return IntervalStart(Clock(t), interval, SeasonOf(t))
}

// BucketTime maps a bucket clock string of date back to an instant.
// Hours at or after the limit hour belong to the previous UTC day.
func (r *Resolver) BucketTime(date time.Time, bucket string) (time.Time, error) {
	h, m, s, err := ParseClock(bucket)
	if err != nil {
		return time.Time{}, err
	}
	d := Midnight(date)
	t := time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, time.UTC)
	if lh := r.Season(d).LimitHour(); h >= lh {
		t = t.AddDate(0, 0, -1)
	}
	return t, nil
}

// FormatDate renders date as YYYY-MM-DD.
func FormatDate(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}
