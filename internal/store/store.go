// Package store persists reconciled measurements and the per-day records
// derived from them.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// Repository is the persistence port. Every Save is an idempotent upsert
// on the record's unique key. Lookups of a single record report a miss with
// ok == false and a nil error.
type Repository interface {
	SaveMeasurements(ctx context.Context, ms []model.Measurement) error
	// Measurements returns the entity's measurements of kind in [from, to),
	// ordered by timestamp.
	Measurements(ctx context.Context, entity string, kind model.MeasurementKind, from, to time.Time) ([]model.Measurement, error)
	// LatestMeasurement returns the newest realtime measurement of name in [from, to).
	LatestMeasurement(ctx context.Context, entity, name string, from, to time.Time) (model.Measurement, bool, error)

	StorageState(ctx context.Context, entity string, date time.Time) (model.StorageState, bool, error)
	SaveStorageState(ctx context.Context, s model.StorageState) error

	DayEnergy(ctx context.Context, entity string, date time.Time) (model.DayEnergy, bool, error)
	SaveDayEnergy(ctx context.Context, e model.DayEnergy) error

	// SwitchRecords returns the stored switch windows of an entity or area.
	SwitchRecords(ctx context.Context, entity string, date time.Time) ([]model.SwitchRecord, error)
	SaveSwitchRecord(ctx context.Context, r model.SwitchRecord) error

	DateWarning(ctx context.Context, entity string, date time.Time) (model.DateWarning, bool, error)
	SaveDateWarning(ctx context.Context, w model.DateWarning) error
}

type dayKey struct {
	entity string
	date   string
}

func keyOf(entity string, date time.Time) dayKey {
	return dayKey{entity: entity, date: calendar.FormatDate(date)}
}

type measurementKey struct {
	name string
	kind model.MeasurementKind
	ts   int64
}

func measurementKeyOf(m model.Measurement) measurementKey {
	return measurementKey{name: m.Name, kind: m.Kind, ts: m.Timestamp.UnixNano()}
}

type switchKey struct {
	day dayKey
	typ model.SwitchType
}

// Memory is an in-memory Repository. Measurements are kept per entity,
// sorted by timestamp.
type Memory struct {
	mu           sync.RWMutex
	measurements map[string][]model.Measurement
	states       map[dayKey]model.StorageState
	energy       map[dayKey]model.DayEnergy
	switches     map[switchKey]model.SwitchRecord
	warnings     map[dayKey]model.DateWarning
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		measurements: make(map[string][]model.Measurement),
		states:       make(map[dayKey]model.StorageState),
		energy:       make(map[dayKey]model.DayEnergy),
		switches:     make(map[switchKey]model.SwitchRecord),
		warnings:     make(map[dayKey]model.DateWarning),
	}
}

// SaveMeasurements upserts ms, then re-sorts each affected entity.
func (s *Memory) SaveMeasurements(_ context.Context, ms []model.Measurement) error {
	if len(ms) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byEntity := make(map[string][]model.Measurement)
	for _, m := range ms {
		m.Timestamp = m.Timestamp.UTC()
		byEntity[m.Entity] = append(byEntity[m.Entity], m)
	}

	for entity, incoming := range byEntity {
		existing := s.measurements[entity]
		index := make(map[measurementKey]int, len(existing))
		for i, m := range existing {
			index[measurementKeyOf(m)] = i
		}
		for _, m := range incoming {
			if i, ok := index[measurementKeyOf(m)]; ok {
				existing[i] = m
				continue
			}
			index[measurementKeyOf(m)] = len(existing)
			existing = append(existing, m)
		}
		sort.SliceStable(existing, func(i, j int) bool {
			return existing[i].Timestamp.Before(existing[j].Timestamp)
		})
		s.measurements[entity] = existing
	}
	return nil
}

// window returns the entity's measurements in [from, to).
func (s *Memory) window(entity string, from, to time.Time) []model.Measurement {
	all := s.measurements[entity]
	if len(all) == 0 {
		return nil
	}

	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(from)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(to)
	})
	if startIdx >= endIdx {
		return nil
	}
	return all[startIdx:endIdx]
}

func (s *Memory) Measurements(_ context.Context, entity string, kind model.MeasurementKind, from, to time.Time) ([]model.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Measurement
	for _, m := range s.window(entity, from, to) {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Memory) LatestMeasurement(_ context.Context, entity, name string, from, to time.Time) (model.Measurement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms := s.window(entity, from, to)
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Name == name && ms[i].Kind == model.KindRealtime {
			return ms[i], true, nil
		}
	}
	return model.Measurement{}, false, nil
}

func (s *Memory) StorageState(_ context.Context, entity string, date time.Time) (model.StorageState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[keyOf(entity, date)]
	return st, ok, nil
}

func (s *Memory) SaveStorageState(_ context.Context, st model.StorageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[keyOf(st.Entity, st.Date)] = st
	return nil
}

func (s *Memory) DayEnergy(_ context.Context, entity string, date time.Time) (model.DayEnergy, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.energy[keyOf(entity, date)]
	return e, ok, nil
}

func (s *Memory) SaveDayEnergy(_ context.Context, e model.DayEnergy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energy[keyOf(e.Entity, e.Date)] = e
	return nil
}

// SwitchRecords returns the off record before the on record.
func (s *Memory) SwitchRecords(_ context.Context, entity string, date time.Time) ([]model.SwitchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.SwitchRecord
	for _, typ := range []model.SwitchType{model.SwitchOff, model.SwitchOn} {
		if r, ok := s.switches[switchKey{day: keyOf(entity, date), typ: typ}]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) SaveSwitchRecord(_ context.Context, r model.SwitchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switches[switchKey{day: keyOf(r.Entity, r.Date), typ: r.Type}] = r
	return nil
}

func (s *Memory) DateWarning(_ context.Context, entity string, date time.Time) (model.DateWarning, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warnings[keyOf(entity, date)]
	return w, ok, nil
}

func (s *Memory) SaveDateWarning(_ context.Context, w model.DateWarning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings[keyOf(w.Entity, w.Date)] = w
	return nil
}

// MeasurementCount returns the number of stored measurements of entity.
func (s *Memory) MeasurementCount(entity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.measurements[entity])
}
