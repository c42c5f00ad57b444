// Package reconcile turns normalised samples into a complete,
// confidence-annotated operating day: splitting day from history, filling
// gaps and deriving energy.
package reconcile

import (
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/stats"
)

// DaySplit is the result of splitting samples around an operating day.
type DaySplit struct {
	Day     *model.Day
	History model.History
}

// Split routes samples before the operating day of date into hourly
// history and samples within it into interval-second buckets. Bucket lists
// are reduced to their mean and history to hourly statistics. Samples after
// the operating day are ignored.
func Split(samples []model.Sample, date time.Time, res *calendar.Resolver, interval int) DaySplit {
	day := res.OperatingDay(date)
	buckets := model.NewOrderedMap[map[string][]model.AttributeValue]()
	history := model.HistorySamples{}

	for _, s := range samples {
		if s.Time.Before(day.Start) {
			hour := s.Time.UTC().Hour()
			for attr, v := range s.Values {
				history.Add(attr, hour, v)
			}
			continue
		}
		if !s.Time.Before(day.End) || len(s.Values) == 0 {
			continue
		}
		bucket := res.Bucket(s.Time, interval)
		lists, ok := buckets.Get(bucket)
		if !ok {
			lists = make(map[string][]model.AttributeValue)
			buckets.Set(bucket, lists)
		}
		for attr, v := range s.Values {
			lists[attr] = append(lists[attr], v)
		}
	}

	return DaySplit{Day: reduceBuckets(buckets), History: stats.SummarizeHistory(history)}
}

func reduceBuckets(buckets *model.OrderedMap[map[string][]model.AttributeValue]) *model.Day {
	out := model.NewDay()
	for bucket, lists := range buckets.All() {
		attrs := make(model.Attributes, len(lists))
		for attr, values := range lists {
			if mean := stats.Mean(values); mean.Present() {
				attrs[attr] = mean
			}
		}
		out.Set(bucket, attrs)
	}
	return out
}

// SplitTypes splits per-entity samples from the per-type endpoint.
func SplitTypes(samples map[string][]model.Sample, date time.Time, res *calendar.Resolver, interval int) map[string]DaySplit {
	out := make(map[string]DaySplit, len(samples))
	for entity, entitySamples := range samples {
		out[entity] = Split(entitySamples, date, res, interval)
	}
	return out
}
