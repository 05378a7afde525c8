package market

import (
	"context"
	"fmt"
	"sort"

	"marketsched/internal/domain"
)

// SQDate returns the official settlement date for the given contract month.
// Missing records are ErrDataNotFound: contract months outside the published
// horizon are expected, not exceptional.
func (m *Market) SQDate(ctx context.Context, cm domain.ContractMonth) (domain.Date, error) {
	rows, err := m.sqRecords(ctx)
	if err != nil {
		return domain.Date{}, err
	}
	for _, r := range rows {
		if r.ContractMonth == cm {
			return r.SQDate, nil
		}
	}
	return domain.Date{}, fmt.Errorf("%w: no SQ date for %s contract %s", domain.ErrDataNotFound, m.def.ID, cm)
}

// IsSQDate reports whether d is the SQ date of any known contract month.
func (m *Market) IsSQDate(ctx context.Context, d domain.Date) (bool, error) {
	rows, err := m.sqRecords(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.SQDate == d {
			return true, nil
		}
	}
	return false, nil
}

// SQDatesForYear returns the SQ dates of every contract month in year,
// ascending. Zero records for the year is ErrDataNotFound rather than an
// empty slice; for a market with monthly contracts an empty year can only
// mean the data does not cover it.
func (m *Market) SQDatesForYear(ctx context.Context, year int) ([]domain.Date, error) {
	rows, err := m.sqRecords(ctx)
	if err != nil {
		return nil, err
	}
	var dates []domain.Date
	for _, r := range rows {
		if r.ContractMonth.Year == year {
			dates = append(dates, r.SQDate)
		}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no SQ dates for %s in %d", domain.ErrDataNotFound, m.def.ID, year)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// sqRecords gates on the SQ capability and loads the cached calendar.
func (m *Market) sqRecords(ctx context.Context) ([]domain.SQRecord, error) {
	if !m.def.SupportsSQ {
		return nil, fmt.Errorf("%w: market %s has no SQ calendar", domain.ErrUnsupportedCapability, m.def.ID)
	}
	rows, _, err := m.data.SQDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("sq dates for %s: %w", m.def.ID, err)
	}
	return rows, nil
}
