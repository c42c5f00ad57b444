package main

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/switchtime"
)

const (
	summarySheet = "Summary"
	bucketSheet  = "Buckets"
)

var summaryHeader = []any{
	"Entity", "Date", "Energy (Wh)", "Energy", "Estimated hours",
	"Real off", "Real on", "Expected off", "Expected on",
	"Level", "Off info", "On info",
	"Not connected", "Missing one", "Missing half", "Error",
}

var bucketHeader = []any{"Entity", "Time", "Level", "Light", "Problem", "History"}

// writeWorkbook writes one summary row per entity and one bucket row per
// entity hour.
func writeWorkbook(path string, r *engine.AreaReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(bucketSheet); err != nil {
		return err
	}

	if err := setRow(f, summarySheet, 1, summaryHeader); err != nil {
		return err
	}
	if err := setRow(f, bucketSheet, 1, bucketHeader); err != nil {
		return err
	}

	bucketRow := 2
	for i, d := range r.Reports {
		row := []any{
			d.Entity, d.Date, d.Energy, d.EnergyText, d.EstimatedHours,
			window(d.Real.Off), window(d.Real.On), window(d.Expected.Off), window(d.Expected.On),
			string(d.Comparison.LogLevel), d.Comparison.SwitchOffInfo, d.Comparison.SwitchOnInfo,
			d.Warnings.NotConnected, d.Warnings.MissingDataOne, d.Warnings.MissingDataHalf, d.Error,
		}
		if err := setRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
		for _, b := range d.Buckets {
			if err := setRow(f, bucketSheet, bucketRow, []any{d.Entity, b.Bucket, string(b.Level), b.Light, b.Problem, b.Extra}); err != nil {
				return err
			}
			bucketRow++
		}
	}

	total := len(r.Reports) + 2
	if err := setRow(f, summarySheet, total, []any{"Total", r.Date, r.Energy, r.EnergyText}); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func window(w switchtime.Window) string {
	return w.Low + "-" + w.High
}
