package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
)

// CSVHeader is the raw export format written by ql-fetch-history.
var CSVHeader = []string{"entity_id", "attribute", "value", "timestamp"}

// CSVParser parses raw provider exports.
//
// Expected format:
//
//	entity_id,attribute,value,timestamp
//	Tampere:KV-0108-C01,intensity.L1,4.52,2019-07-10T05:00:00.000
//	KV-0125-C01,powerState,on,2019-07-10T05:00:00.000
//
// Dotted attributes are phase components. Rows for other entities than
// Entity are skipped; an empty Entity accepts all. Rows sharing a timestamp
// are merged into one sample.
type CSVParser struct {
	Entity string
	Cache  *calendar.DateCache
}

func (p *CSVParser) Parse(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateCSVHeader(header); err != nil {
		return nil, err
	}

	cache := p.Cache
	if cache == nil {
		cache = calendar.NewDateCache()
	}

	var samples []model.Sample
	index := make(map[time.Time]int)
	lineNum := 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		row, err := parseCSVRecord(record, lineNum, cache)
		if err != nil {
			continue
		}
		if p.Entity != "" && row.entity != p.Entity {
			continue
		}

		i, ok := index[row.ts]
		if !ok {
			i = len(samples)
			index[row.ts] = i
			samples = append(samples, model.Sample{Time: row.ts, Values: model.Attributes{}})
		}
		addCSVValue(samples[i].Values, row)
	}

	for _, s := range samples {
		for attr, v := range s.Values {
			if clean, ok := model.Sanitize(attr, v); ok {
				s.Values[attr] = clean
			} else {
				delete(s.Values, attr)
			}
		}
	}

	return samples, nil
}

func validateCSVHeader(header []string) error {
	if len(header) < len(CSVHeader) {
		return fmt.Errorf("expected at least %d columns, got %d", len(CSVHeader), len(header))
	}

	for i, col := range CSVHeader {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}

	return nil
}

type csvRow struct {
	entity string
	attr   string
	value  model.AttributeValue
	ts     time.Time
}

func parseCSVRecord(record []string, lineNum int, cache *calendar.DateCache) (csvRow, error) {
	if len(record) < 4 {
		return csvRow{}, fmt.Errorf("line %d: expected 4 fields, got %d", lineNum, len(record))
	}

	entity := strings.TrimSpace(record[0])
	attr := strings.TrimSpace(record[1])
	if entity == "" || attr == "" {
		return csvRow{}, fmt.Errorf("line %d: empty entity or attribute", lineNum)
	}

	raw := strings.TrimSpace(record[2])
	if raw == "" {
		return csvRow{}, fmt.Errorf("line %d: empty value", lineNum)
	}
	value := model.Status(raw)
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		value = model.Scalar(f)
	}

	ts, err := cache.Parse(strings.TrimSpace(record[3]))
	if err != nil {
		return csvRow{}, fmt.Errorf("line %d: parsing timestamp: %w", lineNum, err)
	}

	return csvRow{entity: entity, attr: attr, value: value, ts: ts}, nil
}

func addCSVValue(values model.Attributes, row csvRow) {
	parent, phase, dotted := model.SplitName(row.attr)
	if !dotted {
		values[row.attr] = row.value
		return
	}
	x, ok := row.value.Float()
	if !ok {
		return
	}
	values[parent] = values[parent].WithPhase(phase, x)
}

// WriteCSV writes rows in the CSVParser format.
func WriteCSV(w io.Writer, rows [][4]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row[:]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
