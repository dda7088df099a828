package export

// Dataset defines tabular export content. Title names the PDF section or the XLSX sheet.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	// Widths holds relative column weights; empty means equal columns.
	Widths []float64
}

// columnWidths spreads total across the headers following Widths.
func (d Dataset) columnWidths(total float64) []float64 {
	widths := make([]float64, len(d.Headers))
	var sum float64
	for i := range d.Headers {
		weight := 1.0
		if i < len(d.Widths) && d.Widths[i] > 0 {
			weight = d.Widths[i]
		}
		widths[i] = weight
		sum += weight
	}
	for i := range widths {
		widths[i] = widths[i] / sum * total
	}
	return widths
}

// Records flattens rows following the header order.
func (d Dataset) Records() [][]string {
	records := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			record[i] = row[header]
		}
		records = append(records, record)
	}
	return records
}

// GridRecord is one slot row of the weekly grid, break rows included.
type GridRecord struct {
	Time string `csv:"time"`
	MON  string `csv:"MON"`
	TUE  string `csv:"TUE"`
	WED  string `csv:"WED"`
	THU  string `csv:"THU"`
	FRI  string `csv:"FRI"`
	SAT  string `csv:"SAT"`
}

// EntryRecord is one occupied cell in flat form.
type EntryRecord struct {
	Day      string `csv:"day"`
	Slot     string `csv:"slot"`
	Subject  string `csv:"subject"`
	Faculty  string `csv:"faculty"`
	Lab      bool   `csv:"lab"`
	Visiting bool   `csv:"visiting"`
}
