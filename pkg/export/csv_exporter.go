package export

import (
	"bytes"
	"fmt"

	"github.com/gocarina/gocsv"
)

// CSVExporter renders timetable records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// RenderGrid produces one CSV line per slot with a column per weekday.
func (e *CSVExporter) RenderGrid(rows []GridRecord) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv requires at least one grid row")
	}
	return marshal(&rows)
}

// RenderEntries produces one CSV line per occupied cell.
func (e *CSVExporter) RenderEntries(entries []EntryRecord) ([]byte, error) {
	return marshal(&entries)
}

func marshal(in interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gocsv.Marshal(in, buf); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
