package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/errtrack"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/switchtime"
)

// DayReport is the analysis of one entity and operating day.
type DayReport struct {
	ID             string                  `json:"id"`
	Service        model.Service           `json:"service"`
	Entity         string                  `json:"entity"`
	Area           string                  `json:"area,omitempty"`
	Date           string                  `json:"date"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Energy         float64                 `json:"energy"`
	EnergyText     string                  `json:"energy_text"`
	EstimatedHours float64                 `json:"estimated_hours"`
	Real           switchtime.Times        `json:"real_switch_times"`
	Expected       switchtime.Times        `json:"expected_switch_times"`
	Comparison     switchtime.Comparison   `json:"comparison"`
	Buckets        []switchtime.BucketInfo `json:"buckets"`
	Warnings       model.DateWarning       `json:"warnings"`
	Error          string                  `json:"error,omitempty"`
}

// AreaReport collects the entity reports of one area.
type AreaReport struct {
	Area       string           `json:"area"`
	Service    model.Service    `json:"service"`
	Date       string           `json:"date"`
	Expected   switchtime.Times `json:"expected_switch_times"`
	Energy     float64          `json:"energy"`
	EnergyText string           `json:"energy_text"`
	Reports    []DayReport      `json:"reports"`
}

// AnalyzeEntity runs the full pipeline for one entity of area.
func (e *Engine) AnalyzeEntity(ctx context.Context, area model.Area, entity string, date time.Time) (DayReport, error) {
	return e.analyzeEntity(ctx, area, entity, date, e.ExpectedSwitchTimes(ctx, area, date), nil)
}

// analyzeEntity builds the report of entity. switchDay holds prefetched
// minute data for the switch analysis and may be nil.
func (e *Engine) analyzeEntity(ctx context.Context, area model.Area, entity string, date time.Time, expected switchtime.Times, switchDay *model.Day) (DayReport, error) {
	date = calendar.Midnight(date)
	el, err := e.ElectricityValues(ctx, area.Service, entity, date)
	if err != nil {
		return DayReport{}, err
	}

	report := DayReport{
		ID:          uuid.NewString(),
		Service:     area.Service,
		Entity:      entity,
		Area:        area.Name,
		Date:        calendar.FormatDate(date),
		GeneratedAt: e.now().UTC(),
		Expected:    expected,
	}

	report.Real = e.realSwitchTimes(ctx, area.Service, entity, date, el.History, switchDay)
	report.Comparison = switchtime.CompareSimple(report.Real, expected)

	season := e.resolver.Season(date)
	for bucket, attrs := range el.Annotated.All() {
		report.Buckets = append(report.Buckets, switchtime.BucketReport(area.Service, bucket, attrs, expected, season))
	}

	report.Warnings = MissingDataWarnings(el.Day, el.Estimates)
	report.Warnings.Entity = entity
	report.Warnings.Date = date
	report.Warnings.WrongSwitchOffTime = report.Comparison.WrongSwitchOffTime
	report.Warnings.WrongSwitchOnTime = report.Comparison.WrongSwitchOnTime
	if err := e.repo.SaveDateWarning(ctx, report.Warnings); err != nil {
		e.log.Warn().Err(err).Str("entity", entity).Msg("saving date warning failed")
	}

	energy := e.energyFromDay(ctx, el)
	report.Energy = energy.Value
	report.EnergyText = FormatEnergy(energy.Value)
	report.EstimatedHours = energy.EstimatedHours

	return report, nil
}

// AnalyzeArea analyzes every entity of area concurrently and publishes the
// reports to the sinks. A failing entity yields a report carrying the error
// and does not stop the others.
func (e *Engine) AnalyzeArea(ctx context.Context, area model.Area, date time.Time) (*AreaReport, error) {
	if !area.Service.Valid() {
		return nil, apperr.Validation("area %s has unknown service %q", area.Name, area.Service)
	}
	date = calendar.Midnight(date)
	expected := e.ExpectedSwitchTimes(ctx, area, date)
	switchDays := e.areaSwitchDays(ctx, area, date)

	reports := make([]DayReport, len(area.Entities))
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, entity := range area.Entities {
		g.Go(func() error {
			report, err := e.analyzeEntity(ctx, area, entity, date, expected, switchDays[entity])
			if err != nil {
				e.log.Error().Err(err).Str("area", area.Name).Str("entity", entity).Msg("entity analysis failed")
				errtrack.CaptureError(err, map[string]string{"area": area.Name, "entity": entity})
				report = DayReport{
					ID:      uuid.NewString(),
					Service: area.Service,
					Entity:  entity,
					Area:    area.Name,
					Date:    calendar.FormatDate(date),
					Error:   err.Error(),
				}
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	out := &AreaReport{
		Area:     area.Name,
		Service:  area.Service,
		Date:     calendar.FormatDate(date),
		Expected: expected,
		Reports:  reports,
	}
	for _, r := range reports {
		out.Energy += r.Energy
	}
	out.EnergyText = FormatEnergy(out.Energy)

	e.log.Info().
		Str("area", area.Name).
		Str("date", out.Date).
		Int("entities", len(reports)).
		Str("energy", out.EnergyText).
		Msg("area analyzed")

	e.publish(ctx, reports)
	return out, nil
}

func (e *Engine) publish(ctx context.Context, reports []DayReport) {
	for _, sink := range e.sinks {
		for _, r := range reports {
			if err := sink.Publish(ctx, r); err != nil {
				e.log.Warn().Err(err).Str("entity", r.Entity).Str("sink", fmt.Sprintf("%T", sink)).Msg("publishing report failed")
			}
		}
	}
}
