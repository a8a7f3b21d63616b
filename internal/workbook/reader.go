package workbook

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Signature identifies workbook content by file stat: "<mtime_ns>:<size>".
// Any save of the workbook changes it, which invalidates cached records.
func Signature(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", domain.InputFormatf("workbook not accessible at %s: %v", path, err)
	}
	if info.IsDir() {
		return "", domain.InputFormatf("workbook path %s is a directory", path)
	}
	return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
}

// sheetData is a parsed sheet: header index plus data rows grouped under
// their parsed period.
type sheetData struct {
	rows     []periodRow
	warnings []string
}

type periodRow struct {
	period domain.CalculationPeriod
	cells  map[string]string // column name -> raw cell value
}

// readSheet opens the workbook and parses one sheet. Each load task opens
// its own handle: excelize files are not safe for concurrent reads.
// A sheet missing from the workbook yields an empty frame, not an error.
func readSheet(path, sheet string, required []string) (*sheetData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.InputFormatf("open workbook %s: %v", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		var notExist excelize.ErrSheetNotExist
		if errors.As(err, &notExist) {
			return &sheetData{warnings: []string{fmt.Sprintf("sheet %s not present in workbook", sheet)}}, nil
		}
		return nil, domain.InputFormatf("read sheet %s: %v", sheet, err)
	}
	if len(rows) == 0 {
		return &sheetData{}, nil
	}

	header := rows[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, domain.InputFormatf("sheet %s: required column %q missing", sheet, col)
		}
	}
	dateIdx := index[ColDate]

	data := &sheetData{}
	for rowNum, row := range rows[1:] {
		raw := cellAt(row, dateIdx)
		if raw == "" {
			continue // trailing blank rows
		}
		date, ok := parseDateCell(raw)
		if !ok {
			data.warnings = append(data.warnings,
				fmt.Sprintf("sheet %s row %d: unparseable date %q, row skipped", sheet, rowNum+2, raw))
			continue
		}
		period := domain.PeriodOf(date)
		if !period.Valid() {
			data.warnings = append(data.warnings,
				fmt.Sprintf("sheet %s row %d: date %s outside supported range, row skipped", sheet, rowNum+2, raw))
			continue
		}

		cells := make(map[string]string, len(index))
		for name, i := range index {
			cells[name] = cellAt(row, i)
		}
		data.rows = append(data.rows, periodRow{period: period, cells: cells})
	}
	return data, nil
}

// cellAt tolerates ragged rows: excelize trims trailing empty cells.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseFloatCell converts a raw cell to a float. Empty or malformed cells
// become nil so the consumer can flag them instead of failing the load.
func parseFloatCell(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// dateLayouts tried in order for string-typed date cells. Serial numbers
// (the common case for true Excel dates) are handled before these.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"1/2/2006",
	"1/2/06",
	"02-Jan-2006",
	"Jan-06",
}

func parseDateCell(s string) (time.Time, bool) {
	// Excel serial date (raw cell value of a date-formatted cell)
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t, true
		}
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
