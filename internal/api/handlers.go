package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/reconcile"
	"streetlight_monitor/internal/switchtime"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(startTime).String(),
	})
}

// DayResponse is a reconciled entity day.
type DayResponse struct {
	Service  model.Service                                  `json:"service"`
	Entity   string                                         `json:"entity"`
	Date     string                                         `json:"date"`
	Buckets  *model.OrderedMap[map[string]model.Confidence] `json:"buckets"`
	Warnings model.DateWarning                              `json:"warnings"`
}

// EnergyResponse is the energy of an entity day.
type EnergyResponse struct {
	Service        model.Service                       `json:"service"`
	Entity         string                              `json:"entity"`
	Date           string                              `json:"date"`
	Buckets        *model.OrderedMap[model.Confidence] `json:"buckets"`
	Total          float64                             `json:"total"`
	TotalText      string                              `json:"total_text"`
	EstimatedHours float64                             `json:"estimated_hours"`
}

// EntitySwitchTimes is the switch analysis of one entity.
type EntitySwitchTimes struct {
	Real       switchtime.Times      `json:"real"`
	Comparison switchtime.Comparison `json:"comparison"`
	Error      string                `json:"error,omitempty"`
}

// SwitchTimesResponse holds the expected windows of an area and the real
// windows of its entities.
type SwitchTimesResponse struct {
	Area     string                       `json:"area"`
	Date     string                       `json:"date"`
	Expected switchtime.Times             `json:"expected"`
	Entities map[string]EntitySwitchTimes `json:"entities"`
}

func (s *Server) parseDate(r *http.Request) (time.Time, error) {
	date, err := s.engine.Resolver().ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q", chi.URLParam(r, "date"))
	}
	return date, nil
}

func (s *Server) area(r *http.Request) (model.Area, error) {
	name := chi.URLParam(r, "area")
	area, ok := s.areas[name]
	if !ok {
		return model.Area{}, apperr.NotFound("area " + name)
	}
	return area, nil
}

func (s *Server) entityParams(r *http.Request) (model.Service, string, time.Time, error) {
	service := model.Service(chi.URLParam(r, "service"))
	if !service.Valid() {
		return "", "", time.Time{}, apperr.Validation("unknown service %q", service)
	}
	date, err := s.parseDate(r)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return service, chi.URLParam(r, "entity"), date, nil
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	service, entity, date, err := s.entityParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	el, err := s.engine.ElectricityValues(r.Context(), service, entity, date)
	if err != nil {
		respondError(w, err)
		return
	}
	warnings := engine.MissingDataWarnings(el.Day, el.Estimates)
	warnings.Entity = entity
	warnings.Date = date
	respondJSON(w, http.StatusOK, DayResponse{
		Service:  service,
		Entity:   entity,
		Date:     calendar.FormatDate(date),
		Buckets:  el.Confidences(),
		Warnings: warnings,
	})
}

func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	service, entity, date, err := s.entityParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	el, err := s.engine.ElectricityValues(r.Context(), service, entity, date)
	if err != nil {
		respondError(w, err)
		return
	}
	total, err := s.engine.DailyEnergy(r.Context(), service, entity, date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, EnergyResponse{
		Service:        service,
		Entity:         entity,
		Date:           calendar.FormatDate(date),
		Buckets:        reconcile.EnergyLevels(el.Day, el.Estimates),
		Total:          total.Value,
		TotalText:      engine.FormatEnergy(total.Value),
		EstimatedHours: total.EstimatedHours,
	})
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	out := make([]model.Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAreaReport(w http.ResponseWriter, r *http.Request) {
	area, err := s.area(r)
	if err != nil {
		respondError(w, err)
		return
	}
	date, err := s.parseDate(r)
	if err != nil {
		respondError(w, err)
		return
	}
	report, err := s.engine.AnalyzeArea(r.Context(), area, date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSwitchTimes(w http.ResponseWriter, r *http.Request) {
	area, err := s.area(r)
	if err != nil {
		respondError(w, err)
		return
	}
	date, err := s.parseDate(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx := r.Context()
	out := SwitchTimesResponse{
		Area:     area.Name,
		Date:     calendar.FormatDate(date),
		Expected: s.engine.ExpectedSwitchTimes(ctx, area, date),
		Entities: make(map[string]EntitySwitchTimes, len(area.Entities)),
	}
	for _, entity := range area.Entities {
		el, err := s.engine.ElectricityValues(ctx, area.Service, entity, date)
		if err != nil {
			out.Entities[entity] = EntitySwitchTimes{Error: err.Error()}
			continue
		}
		realTimes := s.engine.RealSwitchTimes(ctx, area.Service, entity, date, el.History)
		out.Entities[entity] = EntitySwitchTimes{Real: realTimes, Comparison: switchtime.CompareSimple(realTimes, out.Expected)}
	}
	respondJSON(w, http.StatusOK, out)
}
