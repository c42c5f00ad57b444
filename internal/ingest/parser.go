package ingest

import (
	"io"

	"streetlight_monitor/internal/model"
)

// Parser reads raw telemetry from a source and returns normalised samples
// in source order. Out-of-range readings never appear in the result.
type Parser interface {
	Parse(r io.Reader) ([]model.Sample, error)
}
