// Package gather defines the interface for fetching authoritative market
// data from official exchange sources.
package gather

import (
	"context"

	"marketsched/internal/domain"
)

// SQResult is the outcome of one SQ calendar fetch: the complete replacement
// record set and the URLs it came from.
type SQResult struct {
	Records []domain.SQRecord
	Sources []string
}

// HolidayResult is the outcome of one holiday override fetch.
type HolidayResult struct {
	Records []domain.HolidayOverrideRecord
	Sources []string
}

// Fetcher downloads and parses authoritative data for one market. Each fetch
// returns a complete record set; callers replace their snapshot wholesale
// rather than merging.
type Fetcher interface {
	// Name returns the fetcher identifier.
	Name() string

	// FetchSQDates downloads the SQ settlement calendar.
	FetchSQDates(ctx context.Context) (*SQResult, error)

	// FetchHolidayOverrides downloads the published holiday trading
	// decisions.
	FetchHolidayOverrides(ctx context.Context) (*HolidayResult, error)
}
