// Package market holds the decision engines: business day calendar, SQ date
// resolver and session engine. A Market is an immutable bundle of rules
// (timezone, weekly rest days, fixed closures, session windows) plus a data
// provider that supplies the cached authoritative records the engines decide
// against. The engines themselves keep no state and are safe for concurrent
// use.
package market

import (
	"context"
	"fmt"
	"time"

	"marketsched/internal/domain"
)

// DataProvider supplies cached authoritative records. The bool reports
// whether the rows are stale; decisions are made on stale rows all the same,
// the flag exists for callers that want to surface it.
type DataProvider interface {
	SQDates(ctx context.Context) ([]domain.SQRecord, bool, error)
	HolidayOverrides(ctx context.Context) ([]domain.HolidayOverrideRecord, bool, error)
}

// Definition declares a market's fixed rule set. It is copied on
// construction and never mutated afterwards.
type Definition struct {
	ID         string
	Name       string
	Timezone   string // IANA name, e.g. "Asia/Tokyo"
	RestDays   []time.Weekday
	Closures   []domain.MonthDay
	Sessions   []SessionWindow
	SupportsSQ bool
}

// Market answers calendar, SQ and session questions for one exchange.
type Market struct {
	def      Definition
	loc      *time.Location
	rest     map[time.Weekday]bool
	closures map[domain.MonthDay]bool
	data     DataProvider
	clock    domain.Clock
}

// New validates def, resolves its timezone and binds the data provider.
func New(def Definition, data DataProvider) (*Market, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("market definition missing id")
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if data == nil {
		return nil, fmt.Errorf("market %s: nil data provider", def.ID)
	}
	loc, err := time.LoadLocation(def.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market %s: load timezone %q: %w", def.ID, def.Timezone, err)
	}
	for _, w := range def.Sessions {
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("market %s: %w", def.ID, err)
		}
	}

	rest := make(map[time.Weekday]bool, len(def.RestDays))
	for _, d := range def.RestDays {
		rest[d] = true
	}
	closures := make(map[domain.MonthDay]bool, len(def.Closures))
	for _, c := range def.Closures {
		closures[c] = true
	}

	return &Market{
		def:      def,
		loc:      loc,
		rest:     rest,
		closures: closures,
		data:     data,
		clock:    domain.SystemClock{},
	}, nil
}

// SetClock replaces the wall clock used when no instant is supplied.
func (m *Market) SetClock(c domain.Clock) { m.clock = c }

// ID returns the market identifier.
func (m *Market) ID() string { return m.def.ID }

// Name returns the display name.
func (m *Market) Name() string { return m.def.Name }

// Location returns the market's timezone.
func (m *Market) Location() *time.Location { return m.loc }

// SupportsSQ reports whether this market publishes an SQ calendar.
func (m *Market) SupportsSQ() bool { return m.def.SupportsSQ }

// Definition returns a copy of the market's rule set.
func (m *Market) Definition() Definition {
	def := m.def
	def.RestDays = append([]time.Weekday(nil), m.def.RestDays...)
	def.Closures = append([]domain.MonthDay(nil), m.def.Closures...)
	def.Sessions = append([]SessionWindow(nil), m.def.Sessions...)
	return def
}

// overridesByDate loads the holiday override records once and indexes them
// by date. Every calendar operation calls this exactly once so a single
// logical query sees one consistent record set.
func (m *Market) overridesByDate(ctx context.Context) (map[domain.Date]domain.HolidayOverrideRecord, error) {
	rows, _, err := m.data.HolidayOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("holiday overrides for %s: %w", m.def.ID, err)
	}
	byDate := make(map[domain.Date]domain.HolidayOverrideRecord, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}
	return byDate, nil
}
