package model

import "time"

// MeasurementKind is the kind of a persisted measurement value.
type MeasurementKind string

const (
	KindRealtime MeasurementKind = "realtime"
	KindAvg      MeasurementKind = "avg"
	KindStdev    MeasurementKind = "stdev"
)

// StorageFlag tells how much of a day has been persisted.
type StorageFlag string

const (
	StoredNone StorageFlag = "none"
	StoredPart StorageFlag = "part"
	StoredFull StorageFlag = "full"
)

// Measurement is one persisted value. It is unique per
// (Entity, Timestamp, Name, Kind).
type Measurement struct {
	Entity    string          `json:"entity" db:"entity"`
	Name      string          `json:"name" db:"name"`
	Kind      MeasurementKind `json:"kind" db:"kind"`
	Value     float64         `json:"value" db:"value"`
	Timestamp time.Time       `json:"timestamp" db:"ts"`
	IsActual  float64         `json:"is_actual" db:"is_actual"`
}

// StorageState is the per-entity, per-date completeness record.
type StorageState struct {
	Entity   string      `json:"entity" db:"entity"`
	Date     time.Time   `json:"date" db:"date"`
	Realtime StorageFlag `json:"realtime" db:"realtime"`
	History  StorageFlag `json:"history" db:"history"`
}

// DayEnergy is a cached daily energy sum.
type DayEnergy struct {
	Entity         string    `json:"entity" db:"entity"`
	Date           time.Time `json:"date" db:"date"`
	Value          float64   `json:"value" db:"value"`
	EstimatedHours float64   `json:"estimated_hours" db:"estimated_hours"`
}

// SwitchType is either "on" or "off".
type SwitchType string

const (
	SwitchOff SwitchType = "off"
	SwitchOn  SwitchType = "on"
)

// SwitchRecord is a persisted switch time window as UTC clock strings.
// Empty bounds are unknown.
type SwitchRecord struct {
	Entity string     `json:"entity" db:"entity"`
	Date   time.Time  `json:"date" db:"date"`
	Type   SwitchType `json:"type" db:"switch_type"`
	Low    string     `json:"low" db:"low_value"`
	High   string     `json:"high" db:"high_value"`
}

// DateWarning holds the warning flags of one entity and date.
type DateWarning struct {
	Entity             string    `json:"entity" db:"entity"`
	Date               time.Time `json:"date" db:"date"`
	NotConnected       bool      `json:"not_connected" db:"not_connected"`
	MissingDataOne     bool      `json:"missing_data_one" db:"missing_data_one"`
	MissingDataHalf    bool      `json:"missing_data_half" db:"missing_data_half"`
	WrongSwitchOffTime bool      `json:"wrong_switch_off_time" db:"wrong_switch_off_time"`
	WrongSwitchOnTime  bool      `json:"wrong_switch_on_time" db:"wrong_switch_on_time"`
}

// Any reports whether any flag is set.
func (w DateWarning) Any() bool {
	return w.NotConnected || w.MissingDataOne || w.MissingDataHalf ||
		w.WrongSwitchOffTime || w.WrongSwitchOnTime
}
