package jpx

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"marketsched/internal/domain"
)

// buildWorkbook renders rows into an in-memory xlsx file.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()

	xf := excelize.NewFile()
	defer xf.Close()

	sheet := xf.GetSheetName(0)
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := xf.SetSheetRow(sheet, ref, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := xf.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func sqWorkbookRows() [][]any {
	return [][]any{
		{"指数先物・オプション取引 取引最終日・権利行使日"},
		{},
		{"商品", "限月取引", "取引最終日", "権利行使日"},
		{"日経225オプション", "2026年3月限", "2026/3/12", "2026/3/13"},
		{"日経225オプション", "2026年4月限", "2026/4/9", "2026/4/10"},
		{"日経225mini", "2026年3月限", "2026/3/12", "-"},
		{"日経225オプション", "2027年6月限", "-", "-"},
	}
}

func TestParseSQWorkbook(t *testing.T) {
	data := buildWorkbook(t, sqWorkbookRows())

	records, err := parseSQWorkbook(data)
	if err != nil {
		t.Fatalf("parseSQWorkbook: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("parseSQWorkbook returned %d records, want 2", len(records))
	}

	first := records[0]
	if first.ContractMonth != (domain.ContractMonth{Year: 2026, Month: time.March}) {
		t.Errorf("ContractMonth = %v, want 202603", first.ContractMonth)
	}
	if first.LastTradingDay != domain.NewDate(2026, time.March, 12) {
		t.Errorf("LastTradingDay = %v, want 2026-03-12", first.LastTradingDay)
	}
	if first.SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("SQDate = %v, want 2026-03-13", first.SQDate)
	}
	if first.ProductCategory != ProductCategory {
		t.Errorf("ProductCategory = %q, want %q", first.ProductCategory, ProductCategory)
	}
	if records[1].SQDate != domain.NewDate(2026, time.April, 10) {
		t.Errorf("second SQDate = %v, want 2026-04-10", records[1].SQDate)
	}
}

func TestParseSQWorkbookMissingHeader(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"なにかの表"},
		{"A", "B", "C"},
		{"1", "2", "3"},
	})

	_, err := parseSQWorkbook(data)
	if !errors.Is(err, domain.ErrInvalidDataFormat) {
		t.Errorf("parseSQWorkbook err = %v, want ErrInvalidDataFormat", err)
	}
}

func TestParseSQWorkbookMalformedOptionRow(t *testing.T) {
	rows := sqWorkbookRows()
	rows = append(rows, []any{"日経225オプション", "2026年5月限", "2026/5/7", "近日公表"})
	data := buildWorkbook(t, rows)

	_, err := parseSQWorkbook(data)
	if !errors.Is(err, domain.ErrInvalidDataFormat) {
		t.Errorf("parseSQWorkbook err = %v, want ErrInvalidDataFormat", err)
	}
}

func TestParseSQWorkbookNotAnXLSX(t *testing.T) {
	_, err := parseSQWorkbook([]byte("<html>maintenance page</html>"))
	if !errors.Is(err, domain.ErrInvalidDataFormat) {
		t.Errorf("parseSQWorkbook err = %v, want ErrInvalidDataFormat", err)
	}
}

func TestParseHolidayWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"祝日取引の実施予定"},
		{"祝日取引の対象日", "名称", "実施有無"},
		{"2026年9月21日(月)", "敬老の日", "実施する"},
		{"2026年2月11日(水)", "建国記念の日", "実施しない"},
		{"(注) 対象日は変更されることがあります。"},
	})

	records, err := parseHolidayWorkbook(data)
	if err != nil {
		t.Fatalf("parseHolidayWorkbook: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("parseHolidayWorkbook returned %d records, want 2", len(records))
	}

	if records[0].Date != domain.NewDate(2026, time.September, 21) {
		t.Errorf("first date = %v, want 2026-09-21", records[0].Date)
	}
	if records[0].Name != "敬老の日" || !records[0].IsTrading {
		t.Errorf("first record = %+v, want trading 敬老の日", records[0])
	}
	if records[1].IsTrading {
		t.Errorf("建国記念の日 parsed as trading, want non-trading")
	}
	if !records[0].Confirmed || !records[1].Confirmed {
		t.Error("published records should be confirmed")
	}
}

func TestParseHolidayWorkbookMalformedDate(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"祝日取引の対象日", "名称", "実施有無"},
		{"未定", "海の日", "実施する"},
	})

	_, err := parseHolidayWorkbook(data)
	if !errors.Is(err, domain.ErrInvalidDataFormat) {
		t.Errorf("parseHolidayWorkbook err = %v, want ErrInvalidDataFormat", err)
	}
}

func TestParseDateCell(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Date
	}{
		{"2026-03-13", domain.NewDate(2026, time.March, 13)},
		{"2026/3/13", domain.NewDate(2026, time.March, 13)},
		{"2026/03/13", domain.NewDate(2026, time.March, 13)},
		{"2026年3月13日", domain.NewDate(2026, time.March, 13)},
		{"2026年9月21日(月)", domain.NewDate(2026, time.September, 21)},
		{"03-13-26", domain.NewDate(2026, time.March, 13)},
		{"46094", domain.NewDate(2026, time.March, 13)}, // Excel serial
	}
	for _, tt := range tests {
		got, ok := parseDateCell(tt.in)
		if !ok {
			t.Errorf("parseDateCell(%q) failed", tt.in)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDateCell(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "-", "未定", "2026", "13/03/2026"} {
		if _, ok := parseDateCell(bad); ok {
			t.Errorf("parseDateCell(%q) succeeded, want failure", bad)
		}
	}
}

func TestParseMonthCell(t *testing.T) {
	tests := []struct {
		in   string
		want domain.ContractMonth
	}{
		{"2026年3月限", domain.ContractMonth{Year: 2026, Month: time.March}},
		{"26年3月限", domain.ContractMonth{Year: 2026, Month: time.March}},
		{"2026年3月", domain.ContractMonth{Year: 2026, Month: time.March}},
		{"2026/3/1", domain.ContractMonth{Year: 2026, Month: time.March}}, // date cell on the first
	}
	for _, tt := range tests {
		got, ok := parseMonthCell(tt.in)
		if !ok {
			t.Errorf("parseMonthCell(%q) failed", tt.in)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMonthCell(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, ok := parseMonthCell("限月"); ok {
		t.Error(`parseMonthCell("限月") succeeded, want failure`)
	}
}
