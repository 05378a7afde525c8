package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Accepted contract month spellings. Exchange workbooks use the Japanese
// form; the compact and dashed forms come from CLI arguments and stored rows.
var (
	contractMonthJapanese = regexp.MustCompile(`^(\d{2,4})年(\d{1,2})月限$`)
	contractMonthCompact  = regexp.MustCompile(`^(\d{4})(\d{2})$`)
	contractMonthDashed   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

// ContractMonth identifies a derivatives contract month (限月), the maturity
// every SQ date is keyed by. It is comparable and usable as a map key.
type ContractMonth struct {
	Year  int
	Month time.Month
}

// NewContractMonth returns the contract month for year and month. It fails if
// month is outside 1..12 or year is negative.
func NewContractMonth(year int, month time.Month) (ContractMonth, error) {
	if year < 0 {
		return ContractMonth{}, fmt.Errorf("contract month: year %d must be non-negative", year)
	}
	if month < time.January || month > time.December {
		return ContractMonth{}, fmt.Errorf("contract month: month %d must be between 1 and 12", int(month))
	}
	return ContractMonth{Year: year, Month: month}, nil
}

// ParseContractMonth parses a contract month from one of the accepted
// spellings: "26年3月限" or "2026年3月限", "202603", "2026-03". Two-digit
// years are interpreted as 20xx.
func ParseContractMonth(s string) (ContractMonth, error) {
	if m := contractMonthJapanese.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if year < 100 {
			year += 2000
		}
		return newParsedContractMonth(year, month, s)
	}
	if m := contractMonthCompact.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return newParsedContractMonth(year, month, s)
	}
	if m := contractMonthDashed.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return newParsedContractMonth(year, month, s)
	}
	return ContractMonth{}, fmt.Errorf("parse contract month %q: unrecognized format", s)
}

func newParsedContractMonth(year, month int, s string) (ContractMonth, error) {
	cm, err := NewContractMonth(year, time.Month(month))
	if err != nil {
		return ContractMonth{}, fmt.Errorf("parse contract month %q: %w", s, err)
	}
	return cm, nil
}

// String formats the contract month as YYYYMM.
func (cm ContractMonth) String() string {
	return fmt.Sprintf("%d%02d", cm.Year, int(cm.Month))
}

// Japanese formats the contract month in exchange notation, e.g. "2026年3月限".
func (cm ContractMonth) Japanese() string {
	return fmt.Sprintf("%d年%d月限", cm.Year, int(cm.Month))
}

// Compare orders contract months chronologically. It returns -1 if cm is
// earlier than o, 0 if equal and +1 if later.
func (cm ContractMonth) Compare(o ContractMonth) int {
	if cm.Year != o.Year {
		return sign(cm.Year - o.Year)
	}
	return sign(int(cm.Month) - int(o.Month))
}

// Before reports whether cm is strictly earlier than o.
func (cm ContractMonth) Before(o ContractMonth) bool { return cm.Compare(o) < 0 }
