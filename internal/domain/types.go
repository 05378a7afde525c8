// Package domain defines the core value types and failure taxonomy shared by
// the calendar, session and cache layers: calendar dates, contract months,
// authoritative data records and the error classes callers match on.
package domain

// SchemaVersion is the version of the persisted record layout. Snapshots
// written with a different version are rejected on read.
const SchemaVersion = 1

// DataKind identifies one class of authoritative data held in the cache.
type DataKind string

const (
	// KindSQDates is the SQ settlement calendar published per contract month.
	KindSQDates DataKind = "sq_dates"

	// KindHolidayOverrides is the published list of holiday trading decisions
	// that override the static calendar.
	KindHolidayOverrides DataKind = "holiday_overrides"
)

// Kinds lists every data kind in a stable order.
func Kinds() []DataKind {
	return []DataKind{KindSQDates, KindHolidayOverrides}
}

// Valid reports whether k is a known data kind.
func (k DataKind) Valid() bool {
	return k == KindSQDates || k == KindHolidayOverrides
}

// SQRecord is one row of the SQ settlement calendar: the final settlement
// schedule for a single contract month.
type SQRecord struct {
	ContractMonth   ContractMonth
	LastTradingDay  Date
	SQDate          Date
	ProductCategory string
}

// HolidayOverrideRecord is one published holiday trading decision. IsTrading
// overrides whatever the static calendar would say for Date.
type HolidayOverrideRecord struct {
	Date      Date
	Name      string
	IsTrading bool
	Confirmed bool
}
