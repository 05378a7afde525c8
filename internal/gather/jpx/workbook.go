package jpx

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"marketsched/internal/domain"
)

// Column headers in the official workbooks. The parser locates columns by
// header name so reordering a column does not break parsing.
const (
	colProduct        = "商品"
	colContractMonth  = "限月取引"
	colLastTradingDay = "取引最終日"
	colExerciseDay    = "権利行使日"

	colHolidayDate   = "祝日取引の対象日"
	colHolidayName   = "名称"
	colHolidayStatus = "実施有無"
)

// sqProduct is the one product whose rows carry an exercise (SQ) date.
const sqProduct = "日経225オプション"

// statusTrading marks a holiday on which trading takes place.
const statusTrading = "実施する"

// headerScanRows bounds the search for the header row; the workbooks put
// explanatory text above the table.
const headerScanRows = 10

var (
	sqColumns      = []string{colProduct, colContractMonth, colLastTradingDay, colExerciseDay}
	holidayColumns = []string{colHolidayDate, colHolidayName, colHolidayStatus}

	// Contract month cells written as text, with or without the 限 suffix.
	monthCellPattern = regexp.MustCompile(`^(\d{2,4})年(\d{1,2})月限?$`)
)

// Date spellings seen in the workbooks once cell formats are applied.
var dateCellLayouts = []string{
	"2006-01-02",
	"2006/1/2",
	"2006年1月2日",
	"01-02-06", // default short date format
}

// parseSQWorkbook extracts SQ records from the index futures and options
// workbook. Rows for other products and option rows whose exercise date has
// not been published yet ("-") are not part of the data set; a malformed
// cell inside an option row is a format error, never silently dropped.
func parseSQWorkbook(data []byte) ([]domain.SQRecord, error) {
	rows, err := sheetRows(data)
	if err != nil {
		return nil, err
	}

	headerIdx, cols, ok := findHeader(rows, sqColumns)
	if !ok {
		return nil, fmt.Errorf("%w: required columns %v not found", domain.ErrInvalidDataFormat, sqColumns)
	}

	var records []domain.SQRecord
	for _, row := range rows[headerIdx+1:] {
		if cell(row, cols[colProduct]) != sqProduct {
			continue
		}
		exercise := cell(row, cols[colExerciseDay])
		if exercise == "" || exercise == "-" {
			continue
		}

		monthRaw := cell(row, cols[colContractMonth])
		cm, ok := parseMonthCell(monthRaw)
		if !ok {
			return nil, fmt.Errorf("%w: bad contract month cell %q", domain.ErrInvalidDataFormat, monthRaw)
		}
		ltdRaw := cell(row, cols[colLastTradingDay])
		ltd, ok := parseDateCell(ltdRaw)
		if !ok {
			return nil, fmt.Errorf("%w: bad last trading day cell %q", domain.ErrInvalidDataFormat, ltdRaw)
		}
		sq, ok := parseDateCell(exercise)
		if !ok {
			return nil, fmt.Errorf("%w: bad exercise date cell %q", domain.ErrInvalidDataFormat, exercise)
		}

		records = append(records, domain.SQRecord{
			ContractMonth:   cm,
			LastTradingDay:  ltd,
			SQDate:          sq,
			ProductCategory: ProductCategory,
		})
	}
	return records, nil
}

// parseHolidayWorkbook extracts holiday trading decisions. Rows without a
// date or name cell are layout furniture (spacers, footnotes), not data.
func parseHolidayWorkbook(data []byte) ([]domain.HolidayOverrideRecord, error) {
	rows, err := sheetRows(data)
	if err != nil {
		return nil, err
	}

	headerIdx, cols, ok := findHeader(rows, holidayColumns)
	if !ok {
		return nil, fmt.Errorf("%w: required columns %v not found", domain.ErrInvalidDataFormat, holidayColumns)
	}

	var records []domain.HolidayOverrideRecord
	for _, row := range rows[headerIdx+1:] {
		dateRaw := cell(row, cols[colHolidayDate])
		name := cell(row, cols[colHolidayName])
		if dateRaw == "" || name == "" {
			continue
		}

		d, ok := parseDateCell(dateRaw)
		if !ok {
			return nil, fmt.Errorf("%w: bad holiday date cell %q", domain.ErrInvalidDataFormat, dateRaw)
		}

		records = append(records, domain.HolidayOverrideRecord{
			Date:      d,
			Name:      name,
			IsTrading: cell(row, cols[colHolidayStatus]) == statusTrading,
			Confirmed: true, // published decisions are final
		})
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Workbook helpers
// ---------------------------------------------------------------------------

// sheetRows opens the workbook and returns the first sheet as rows of
// formatted cell strings.
func sheetRows(data []byte) ([][]string, error) {
	xf, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", domain.ErrInvalidDataFormat, err)
	}
	defer xf.Close()

	sheet := xf.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidDataFormat)
	}
	rows, err := xf.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", domain.ErrInvalidDataFormat, sheet, err)
	}
	return rows, nil
}

// findHeader scans the first headerScanRows rows for one containing every
// wanted column name and maps those names to column indices.
func findHeader(rows [][]string, wanted []string) (int, map[string]int, bool) {
	limit := len(rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		cols := make(map[string]int, len(wanted))
		for j, v := range rows[i] {
			v = strings.TrimSpace(v)
			for _, w := range wanted {
				if v == w {
					if _, dup := cols[w]; !dup {
						cols[w] = j
					}
				}
			}
		}
		if len(cols) == len(wanted) {
			return i, cols, true
		}
	}
	return 0, nil, false
}

// cell returns the trimmed cell at index idx, or "" when the row is shorter.
func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseMonthCell parses a contract month cell: either a text month such as
// "2026年3月限" or a date cell on the first of the month.
func parseMonthCell(s string) (domain.ContractMonth, bool) {
	s = strings.TrimSpace(s)
	if m := monthCellPattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if year < 100 {
			year += 2000
		}
		cm, err := domain.NewContractMonth(year, time.Month(month))
		if err != nil {
			return domain.ContractMonth{}, false
		}
		return cm, true
	}
	if d, ok := parseDateCell(s); ok {
		return domain.ContractMonth{Year: d.Year, Month: d.Month}, true
	}
	return domain.ContractMonth{}, false
}

// parseDateCell parses one date cell. Date cells without a format surface as
// raw Excel serial numbers, so those are accepted too. Decorations such as a
// trailing weekday "(月)" are stripped before parsing.
func parseDateCell(s string) (domain.Date, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "(（"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return domain.Date{}, false
	}

	for _, layout := range dateCellLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOf(t), true
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 10000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return domain.DateOf(t), true
		}
	}
	return domain.Date{}, false
}
