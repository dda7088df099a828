package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth = 277.0
	pdfCellPad   = 2.0
)

// PDFExporter renders datasets into a landscape tabular PDF, one section per dataset.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title followed by each dataset as a table.
func (e *PDFExporter) Render(title string, datasets ...Dataset) ([]byte, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("pdf requires at least one dataset")
	}
	for _, data := range datasets {
		if len(data.Headers) == 0 {
			return nil, fmt.Errorf("pdf dataset %q requires at least one header", data.Title)
		}
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	for i, data := range datasets {
		if i > 0 {
			pdf.Ln(6)
		}
		writeTable(pdf, tr, data)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset) {
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(data.Title), "", 1, "L", false, 0, "")
	}

	widths := data.columnWidths(pdfPageWidth)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, tr(fitText(pdf, header, widths[i])), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "", 8)
	for _, record := range data.Records() {
		for i, value := range record {
			pdf.CellFormat(widths[i], 7, tr(fitText(pdf, value, widths[i])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// fitText trims value until it fits the cell width at the current font.
func fitText(pdf *gofpdf.Fpdf, value string, width float64) string {
	limit := width - pdfCellPad
	if pdf.GetStringWidth(value) <= limit {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
