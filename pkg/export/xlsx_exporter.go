package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxDefaultSheet = "Sheet1"
	xlsxMaxSheetName = 31
	xlsxBaseColWidth = 18.0
)

// XLSXExporter renders datasets into a workbook, one sheet per dataset.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds the workbook and returns its bytes. The first dataset becomes the active sheet.
func (e *XLSXExporter) Render(datasets ...Dataset) ([]byte, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one dataset")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create body style: %w", err)
	}

	used := make(map[string]struct{}, len(datasets))
	for i, data := range datasets {
		if len(data.Headers) == 0 {
			return nil, fmt.Errorf("xlsx dataset %q requires at least one header", data.Title)
		}
		name := sheetName(data.Title, i, used)
		idx, err := f.NewSheet(name)
		if err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, name, data, headerStyle, bodyStyle); err != nil {
			return nil, err
		}
	}
	if _, ok := used[xlsxDefaultSheet]; !ok {
		if err := f.DeleteSheet(xlsxDefaultSheet); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, data Dataset, headerStyle, bodyStyle int) error {
	widths := data.columnWidths(xlsxBaseColWidth * float64(len(data.Headers)))
	for i, header := range data.Headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("resolve column %d: %w", i+1, err)
		}
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
		if err := f.SetCellValue(sheet, cellName(i+1, 1), header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := f.SetCellStyle(sheet, cellName(1, 1), cellName(len(data.Headers), 1), headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	records := data.Records()
	for r, record := range records {
		for c, value := range record {
			if err := f.SetCellValue(sheet, cellName(c+1, r+2), value); err != nil {
				return fmt.Errorf("write cell: %w", err)
			}
		}
	}
	if len(records) > 0 {
		if err := f.SetCellStyle(sheet, cellName(1, 2), cellName(len(data.Headers), len(records)+1), bodyStyle); err != nil {
			return fmt.Errorf("style body: %w", err)
		}
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetName keeps titles within Excel's naming rules and unique within the workbook.
func sheetName(title string, index int, used map[string]struct{}) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if runes := []rune(name); len(runes) > xlsxMaxSheetName {
		name = string(runes[:xlsxMaxSheetName])
	}
	base := name
	for n := 2; ; n++ {
		if _, taken := used[name]; !taken {
			break
		}
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > xlsxMaxSheetName {
			runes = runes[:xlsxMaxSheetName-len(suffix)]
		}
		name = string(runes) + suffix
	}
	used[name] = struct{}{}
	return name
}
