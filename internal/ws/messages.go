package ws

import (
	"encoding/json"

	"streetlight_monitor/internal/engine"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type SubscribePayload struct {
	Area string `json:"area"`
}

type AnalyzePayload struct {
	Area string `json:"area"`
	Date string `json:"date"`
}

// Server -> Client messages

type AreaInfo struct {
	Name     string   `json:"name"`
	Service  string   `json:"service"`
	Entities []string `json:"entities"`
}

type AreasPayload struct {
	Areas []AreaInfo `json:"areas"`
}

// AreaDonePayload closes an analysis run. The entity reports arrive before
// it as report:day messages.
type AreaDonePayload struct {
	Area       string  `json:"area"`
	Date       string  `json:"date"`
	Entities   int     `json:"entities"`
	Failed     int     `json:"failed"`
	Energy     float64 `json:"energy"`
	EnergyText string  `json:"energy_text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Message type constants
const (
	// Client -> Server
	TypeSubscribe   = "area:subscribe"
	TypeUnsubscribe = "area:unsubscribe"
	TypeAnalyze     = "area:analyze"

	// Server -> Client
	TypeAreas     = "areas:list"
	TypeDayReport = "report:day"
	TypeAreaDone  = "report:area"
	TypeError     = "error"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func AreaDoneFromReport(r *engine.AreaReport) AreaDonePayload {
	failed := 0
	for _, d := range r.Reports {
		if d.Error != "" {
			failed++
		}
	}
	return AreaDonePayload{
		Area:       r.Area,
		Date:       r.Date,
		Entities:   len(r.Reports),
		Failed:     failed,
		Energy:     r.Energy,
		EnergyText: r.EnergyText,
	}
}
