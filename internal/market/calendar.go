package market

import (
	"context"
	"fmt"

	"marketsched/internal/domain"
)

// maxBusinessDayScan bounds next/previous scans. A market whose rules admit
// no business day within this many calendar days is misconfigured.
const maxBusinessDayScan = 1000

// IsBusinessDay reports whether d is a trading day. Decision order, first
// match wins:
//
//  1. weekly rest day, unless an override for d says trading
//  2. fixed annual closure, unless an override for d says trading
//  3. an override exists for d: its flag decides
//  4. otherwise a business day
func (m *Market) IsBusinessDay(ctx context.Context, d domain.Date) (bool, error) {
	overrides, err := m.overridesByDate(ctx)
	if err != nil {
		return false, err
	}
	return m.decideBusinessDay(d, overrides), nil
}

// NextBusinessDay returns the first business day strictly after d.
func (m *Market) NextBusinessDay(ctx context.Context, d domain.Date) (domain.Date, error) {
	overrides, err := m.overridesByDate(ctx)
	if err != nil {
		return domain.Date{}, err
	}
	return m.scanBusinessDay(d, 1, overrides)
}

// PreviousBusinessDay returns the first business day strictly before d.
func (m *Market) PreviousBusinessDay(ctx context.Context, d domain.Date) (domain.Date, error) {
	overrides, err := m.overridesByDate(ctx)
	if err != nil {
		return domain.Date{}, err
	}
	return m.scanBusinessDay(d, -1, overrides)
}

// BusinessDaysInRange returns the business days between start and end,
// inclusive both ends, ascending. A start after end yields an empty result.
func (m *Market) BusinessDaysInRange(ctx context.Context, start, end domain.Date) ([]domain.Date, error) {
	if start.After(end) {
		return nil, nil
	}
	overrides, err := m.overridesByDate(ctx)
	if err != nil {
		return nil, err
	}

	var days []domain.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if m.decideBusinessDay(d, overrides) {
			days = append(days, d)
		}
	}
	return days, nil
}

// CountBusinessDaysInRange returns the number of business days between start
// and end, inclusive both ends.
func (m *Market) CountBusinessDaysInRange(ctx context.Context, start, end domain.Date) (int, error) {
	days, err := m.BusinessDaysInRange(ctx, start, end)
	if err != nil {
		return 0, err
	}
	return len(days), nil
}

func (m *Market) decideBusinessDay(d domain.Date, overrides map[domain.Date]domain.HolidayOverrideRecord) bool {
	ov, hasOverride := overrides[d]
	if m.rest[d.Weekday()] {
		return hasOverride && ov.IsTrading
	}
	if m.closures[domain.MonthDay{Month: d.Month, Day: d.Day}] {
		return hasOverride && ov.IsTrading
	}
	if hasOverride {
		return ov.IsTrading
	}
	return true
}

func (m *Market) scanBusinessDay(d domain.Date, step int, overrides map[domain.Date]domain.HolidayOverrideRecord) (domain.Date, error) {
	cur := d
	for i := 0; i < maxBusinessDayScan; i++ {
		cur = cur.AddDays(step)
		if m.decideBusinessDay(cur, overrides) {
			return cur, nil
		}
	}
	return domain.Date{}, fmt.Errorf("market %s: no business day within %d days of %s", m.def.ID, maxBusinessDayScan, d)
}
