// Command streetlight reconciles, measures and reports streetlight days from
// the command line.
//
// Usage:
//
//	streetlight reconcile --service viinikka --entity KV-0125-C01 --date 2019-07-10 [--input export.csv]
//	streetlight energy --service tampere --entity Tampere:KV-0108-C01 --date 2019-07-10
//	streetlight report --area viinikka --entity KV-0125-C01 --date 2019-07-10 --xlsx out.xlsx
//	streetlight migrate
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"streetlight_monitor/internal/api"
	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/config"
	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/store"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "streetlight",
		Usage:   "Streetlight telemetry reconciliation and analysis",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logging.Setup(c.String("log-level"), "console")
			return nil
		},
		Commands: []*cli.Command{
			reconcileCommand(),
			energyCommand(),
			reportCommand(),
			migrateCommand(),
		},
	}
}

func serviceFlag() cli.Flag {
	return &cli.StringFlag{Name: "service", Aliases: []string{"s"}, Usage: "Service (tampere, viinikka)", Required: true}
}

func entityFlag() cli.Flag {
	return &cli.StringFlag{Name: "entity", Aliases: []string{"e"}, Usage: "Entity id", Required: true}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Operating day (YYYY-MM-DD)", Required: true}
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Replay a ql-fetch-history CSV export instead of querying the provider"}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Print the reconciled day of an entity as JSON",
		Flags:  []cli.Flag{serviceFlag(), entityFlag(), dateFlag(), inputFlag()},
		Action: runReconcile,
	}
}

func energyCommand() *cli.Command {
	return &cli.Command{
		Name:   "energy",
		Usage:  "Print the daily energy of an entity",
		Flags:  []cli.Flag{serviceFlag(), entityFlag(), dateFlag(), inputFlag()},
		Action: runEnergy,
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Analyse every entity of an area",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "area", Aliases: []string{"a"}, Usage: "Area name from AREAS_FILE", Required: true},
			&cli.StringSliceFlag{Name: "entity", Aliases: []string{"e"}, Usage: "Entities to add to the area"},
			dateFlag(),
			inputFlag(),
			&cli.StringFlag{Name: "xlsx", Usage: "Write the reports to this spreadsheet instead of printing JSON"},
		},
		Action: runReport,
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the PostgreSQL schema at DATABASE_URL",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return apperr.ConfigInvalid("DATABASE_URL not set")
			}
			db, err := store.Open(c.Context, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(c.Context, db); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "schema up to date")
			return nil
		},
	}
}

// session is an engine wired from the environment and the command flags.
type session struct {
	cfg    *config.Config
	engine *engine.Engine
	close  func() error
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dates := calendar.NewDateCache()
	var p engine.Provider
	if path := c.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		replay, err := provider.NewReplay(f, dates)
		f.Close()
		if err != nil {
			return nil, err
		}
		p = replay
	} else {
		if cfg.Provider.Address == "" {
			return nil, apperr.ConfigInvalid("QUANTUMLEAP_ADDRESS not set, pass --input to replay an export")
		}
		p = provider.New(cfg.Provider, dates)
	}

	repo, closeRepo, err := store.Connect(c.Context, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	eng := engine.New(p, repo,
		engine.WithResolver(calendar.NewResolver(dates)),
		engine.WithSun(cfg.Sun),
		engine.WithWorkers(cfg.AreaWorkers),
	)
	return &session{cfg: cfg, engine: eng, close: closeRepo}, nil
}

func (s *session) entityArgs(c *cli.Context) (model.Service, string, error) {
	service := model.Service(c.String("service"))
	if !service.Valid() {
		return "", "", apperr.Validation("unknown service %q", service)
	}
	return service, c.String("entity"), nil
}

func runReconcile(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	service, entity, err := s.entityArgs(c)
	if err != nil {
		return err
	}
	date, err := s.engine.Resolver().ParseDate(c.String("date"))
	if err != nil {
		return apperr.Validation("%v", err)
	}

	el, err := s.engine.ElectricityValues(c.Context, service, entity, date)
	if err != nil {
		return err
	}
	warnings := engine.MissingDataWarnings(el.Day, el.Estimates)
	warnings.Entity = entity
	warnings.Date = date
	return writeJSON(c.App.Writer, api.DayResponse{
		Service:  service,
		Entity:   entity,
		Date:     calendar.FormatDate(date),
		Buckets:  el.Confidences(),
		Warnings: warnings,
	})
}

func runEnergy(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	service, entity, err := s.entityArgs(c)
	if err != nil {
		return err
	}
	date, err := s.engine.Resolver().ParseDate(c.String("date"))
	if err != nil {
		return apperr.Validation("%v", err)
	}

	total, err := s.engine.DailyEnergy(c.Context, service, entity, date)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s %s: %s (%.1f estimated hours)\n",
		entity, calendar.FormatDate(date), engine.FormatEnergy(total.Value), total.EstimatedHours)
	return nil
}

func runReport(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	areas, err := config.LoadAreas(s.cfg.AreasFile)
	if err != nil {
		return err
	}
	area, ok := findArea(areas, c.String("area"))
	if !ok {
		return apperr.NotFound("area " + c.String("area"))
	}
	area.Entities = append(area.Entities, c.StringSlice("entity")...)
	if len(area.Entities) == 0 {
		return apperr.Validation("area %s has no entities, pass --entity", area.Name)
	}

	date, err := s.engine.Resolver().ParseDate(c.String("date"))
	if err != nil {
		return apperr.Validation("%v", err)
	}

	report, err := s.engine.AnalyzeArea(c.Context, area, date)
	if err != nil {
		return err
	}

	if path := c.String("xlsx"); path != "" {
		if err := writeWorkbook(path, report); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "wrote %d reports to %s\n", len(report.Reports), path)
		return nil
	}
	return writeJSON(c.App.Writer, report)
}

func findArea(areas []model.Area, name string) (model.Area, bool) {
	for _, a := range areas {
		if a.Name == name {
			return a, true
		}
	}
	return model.Area{}, false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
