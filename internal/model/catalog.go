package model

import (
	"strings"
	"time"
)

// Service identifies a streetlight data service. The two services differ in
// attribute sets, sampling and aggregation.
type Service string

const (
	ServiceTampere  Service = "tampere"
	ServiceViinikka Service = "viinikka"
)

// Phase is an electrical phase identifier. L0 only exists for the Tampere
// energy attribute.
type Phase string

const (
	L0 Phase = "L0"
	L1 Phase = "L1"
	L2 Phase = "L2"
	L3 Phase = "L3"
)

// Phases lists the three phases of a 3-phase attribute in display order.
var Phases = []Phase{L1, L2, L3}

const (
	AttrIntensity        = "intensity"
	AttrVoltage          = "voltage"
	AttrActivePower      = "activePower"
	AttrIlluminanceLevel = "illuminanceLevel"
	AttrEnergy           = "energy"
	AttrPowerState       = "powerState"
	// AttrIlluminance is read from area light sensors, not from lamps.
	AttrIlluminance = "illuminance"
)

const (
	SizeLimit                = 10000
	HistoryDays              = 21
	RecentDataInterval       = 3600
	SwitchTimeInterval       = 60
	PreviousDayCheckHours    = 4
	HoursInDay               = 24
	DaySeconds               = 86400
	HourSeconds              = 3600
	FullIlluminanceEnergy    = 50.0
	NominalVoltage           = 230.0
	DefaultIlluminanceOff    = 10.0
	DefaultIlluminanceOn     = 15.0
	EstimationLimitHigh      = 0.75
	EstimationLimitLow       = 0.4
	StdsFromAverage          = 3.0
	MinStdev                 = 0.1
	OKLimitSeconds           = 15 * 60
	WarningLimitSeconds      = 30 * 60
	IntervalWarningLimitSecs = 2 * 3600
	ExpectedSwitchWindowSecs = 7200
	MissingClock             = "##:##:##"
	MissingClockNoSeconds    = "##:##"
	IntervalSeparator        = "-"
)

// ValueRange is the physically plausible range of an attribute. Readings
// outside the range are discarded at ingestion.
type ValueRange struct {
	Low  float64
	High float64
}

// Contains reports whether v lies within the closed range.
func (r ValueRange) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// ValueRanges maps attribute names, including dotted phase names, to their range.
var ValueRanges = map[string]ValueRange{
	AttrIntensity:        {Low: 0, High: 500},
	AttrVoltage:          {Low: 0, High: 500},
	AttrActivePower:      {Low: 0, High: 500},
	AttrIlluminanceLevel: {Low: 0, High: 1},
	AttrEnergy:           {Low: 0, High: 10e9},
	"intensity.L1":       {Low: 0, High: 500},
	"intensity.L2":       {Low: 0, High: 500},
	"intensity.L3":       {Low: 0, High: 500},
	"voltage.L1":         {Low: 0, High: 500},
	"voltage.L2":         {Low: 0, High: 500},
	"voltage.L3":         {Low: 0, High: 500},
	"energy.L0":          {Low: 0, High: 10e9},
}

// ServiceInfo holds the per-service attribute catalog.
type ServiceInfo struct {
	Attributes       []string
	SwitchAttributes []string
	// EnergyAttribute is the (possibly dotted) name derived energy is stored under.
	EnergyAttribute string
	// FullStoreLimit is how long after the date start a day counts as complete.
	FullStoreLimit time.Duration
	// Aggregated services are queried with avg aggregation.
	Aggregated               bool
	IlluminanceType          string
	DefaultIlluminanceDevice string
	ExtraCabinet             string
}

// Services is the service catalog.
var Services = map[Service]ServiceInfo{
	ServiceTampere: {
		Attributes:               []string{AttrIntensity, AttrVoltage},
		SwitchAttributes:         []string{AttrIntensity},
		EnergyAttribute:          AttrEnergy + "." + string(L0),
		FullStoreLimit:           24*time.Hour + 8*time.Hour + 30*time.Minute,
		IlluminanceType:          "WeatherObserved",
		DefaultIlluminanceDevice: "WeatherObserved:KV-0217",
		ExtraCabinet:             "Tampere:Unknown",
	},
	ServiceViinikka: {
		Attributes:               []string{AttrActivePower, AttrIntensity, AttrVoltage, AttrIlluminanceLevel},
		SwitchAttributes:         []string{AttrIlluminanceLevel},
		EnergyAttribute:          AttrEnergy,
		FullStoreLimit:           24 * time.Hour,
		Aggregated:               true,
		IlluminanceType:          "AmbientLightSensor",
		DefaultIlluminanceDevice: "KV-0125-LS01",
		ExtraCabinet:             "Viinikka:Unknown",
	},
}

// Info returns the catalog entry for s. Unknown services are a programming error.
func (s Service) Info() ServiceInfo {
	info, ok := Services[s]
	if !ok {
		panic("model: unknown service " + string(s))
	}
	return info
}

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	_, ok := Services[s]
	return ok
}

// HistoryComparisonAttributes are checked against the 3-sigma history band.
var HistoryComparisonAttributes = map[string]bool{
	AttrActivePower: true,
	AttrIntensity:   true,
	AttrVoltage:     true,
}

// HistoryAttributes returns the service attributes that carry history.
func HistoryAttributes(s Service) []string {
	var attrs []string
	for _, a := range s.Info().Attributes {
		if HistoryComparisonAttributes[a] {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// ShortNames are the display names used in logs and reports.
var ShortNames = map[string]string{
	AttrActivePower:      "power",
	AttrIntensity:        "current",
	AttrIlluminanceLevel: "level",
	AttrPowerState:       "state",
	AttrVoltage:          "voltage",
	AttrEnergy:           AttrEnergy,
}

// storageNames maps attribute names to persisted measurement names.
var storageNames = map[Service]map[string]string{
	ServiceTampere: {
		"intensity.L1": "current_L1",
		"intensity.L2": "current_L2",
		"intensity.L3": "current_L3",
		"voltage.L1":   "voltage_L1",
		"voltage.L2":   "voltage_L2",
		"voltage.L3":   "voltage_L3",
		"energy.L0":    "energy",
	},
	ServiceViinikka: {
		AttrActivePower:      "power",
		AttrIntensity:        "current",
		AttrVoltage:          "voltage",
		AttrIlluminanceLevel: "illuminance_level",
		AttrEnergy:           "energy",
	},
}

var attributeNames map[Service]map[string]string

func init() {
	attributeNames = make(map[Service]map[string]string, len(storageNames))
	for service, names := range storageNames {
		reverse := make(map[string]string, len(names))
		for attr, stored := range names {
			reverse[stored] = attr
		}
		attributeNames[service] = reverse
	}
}

// StorageName returns the persisted measurement name for a (dotted) attribute.
func StorageName(s Service, attr string) (string, bool) {
	name, ok := storageNames[s][attr]
	return name, ok
}

// AttributeName is the reverse of StorageName.
func AttributeName(s Service, stored string) (string, bool) {
	attr, ok := attributeNames[s][stored]
	return attr, ok
}

// SplitName splits a dotted attribute name into parent and phase.
func SplitName(name string) (string, Phase, bool) {
	parent, sub, ok := strings.Cut(name, ".")
	if !ok {
		return name, "", false
	}
	return parent, Phase(sub), true
}

// PhaseName joins a parent attribute and phase into a dotted name.
func PhaseName(attr string, p Phase) string {
	return attr + "." + string(p)
}

// Area is a streetlight control area: a group of entities of one service
// sharing an illuminance sensor.
type Area struct {
	Name              string   `json:"name"`
	Service           Service  `json:"service"`
	EntityType        string   `json:"entity_type"`
	Entities          []string `json:"entities"`
	IlluminanceDevice string   `json:"illuminance_device"`
	IlluminanceOff    float64  `json:"illuminance_off"`
	IlluminanceOn     float64  `json:"illuminance_on"`
	Latitude          float64  `json:"latitude,omitempty"`
	Longitude         float64  `json:"longitude,omitempty"`
}

// IlluminanceLimits returns the configured on/off limits, falling back to defaults.
func (a Area) IlluminanceLimits() (off, on float64) {
	off, on = a.IlluminanceOff, a.IlluminanceOn
	if off == 0 {
		off = DefaultIlluminanceOff
	}
	if on == 0 {
		on = DefaultIlluminanceOn
	}
	return off, on
}

// TimeRange is a half-open time interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}
