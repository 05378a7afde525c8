// Package jpx fetches SQ calendars and holiday trading decisions from the
// official JPX website and parses the published Excel workbooks.
package jpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"marketsched/internal/domain"
	"marketsched/internal/gather"
	"marketsched/internal/util"
)

// Compile-time interface check.
var _ gather.Fetcher = (*Fetcher)(nil)

// ProductCategory tags every record parsed from the index futures and
// options workbook.
const ProductCategory = "index_futures_options"

// Fetcher downloads SQ calendars and holiday trading decisions from the JPX
// website. Downloads are retried with backoff and paced so refresh bursts
// stay polite to the official endpoints.
type Fetcher struct {
	client        *http.Client
	sqURLTemplate string // %d is the calendar year
	holidayURL    string
	yearsAhead    int
	maxRetries    int
	retryDelay    time.Duration
	limiter       *util.RateLimiter
	clock         domain.Clock
	log           *slog.Logger
}

// NewFetcher creates a Fetcher that downloads SQ workbooks from
// sqURLTemplate (one per year, current year through yearsAhead years out)
// and holiday decisions from holidayURL.
func NewFetcher(sqURLTemplate, holidayURL string, yearsAhead, maxRetries, rateLimitPerMin int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:        &http.Client{Timeout: timeout},
		sqURLTemplate: sqURLTemplate,
		holidayURL:    holidayURL,
		yearsAhead:    yearsAhead,
		maxRetries:    maxRetries,
		retryDelay:    time.Second,
		limiter:       util.NewRateLimiter(rateLimitPerMin),
		clock:         domain.SystemClock{},
		log:           slog.Default().With("fetcher", "jpx"),
	}
}

// SetClock replaces the wall clock used to pick the year span. Tests use it
// to pin "this year".
func (f *Fetcher) SetClock(c domain.Clock) { f.clock = c }

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return "jpx" }

// FetchSQDates downloads one SQ workbook per calendar year and parses the
// option rows that carry an exercise date. Any failed year fails the whole
// fetch; a partial calendar must never replace a complete one. Contract
// months listed in more than one yearly workbook collapse to a single record,
// the later workbook winning.
func (f *Fetcher) FetchSQDates(ctx context.Context) (*gather.SQResult, error) {
	startYear := f.clock.Now().UTC().Year()

	byMonth := make(map[domain.ContractMonth]domain.SQRecord)
	var sources []string
	for year := startYear; year <= startYear+f.yearsAhead; year++ {
		url := fmt.Sprintf(f.sqURLTemplate, year)

		data, err := f.download(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("sq calendar %d: %w", year, err)
		}
		rows, err := parseSQWorkbook(data)
		if err != nil {
			return nil, fmt.Errorf("sq calendar %d: %w", year, err)
		}

		f.log.Debug("parsed sq workbook", "year", year, "records", len(rows))
		for _, r := range rows {
			byMonth[r.ContractMonth] = r
		}
		sources = append(sources, url)
	}

	if len(byMonth) == 0 {
		return nil, fmt.Errorf("%w: no SQ records in %d workbook(s)", domain.ErrInvalidDataFormat, len(sources))
	}

	records := make([]domain.SQRecord, 0, len(byMonth))
	for _, r := range byMonth {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ContractMonth.Before(records[j].ContractMonth)
	})
	return &gather.SQResult{Records: records, Sources: sources}, nil
}

// FetchHolidayOverrides downloads and parses the holiday trading workbook.
func (f *Fetcher) FetchHolidayOverrides(ctx context.Context) (*gather.HolidayResult, error) {
	data, err := f.download(ctx, f.holidayURL)
	if err != nil {
		return nil, fmt.Errorf("holiday overrides: %w", err)
	}
	records, err := parseHolidayWorkbook(data)
	if err != nil {
		return nil, fmt.Errorf("holiday overrides: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no holiday rows in workbook", domain.ErrInvalidDataFormat)
	}

	f.log.Debug("parsed holiday workbook", "records", len(records))
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return &gather.HolidayResult{Records: records, Sources: []string{f.holidayURL}}, nil
}

// download GETs url with retry and pacing. Failures come back wrapped in
// ErrFetchFailed; context cancellation passes through untouched.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := util.Retry(ctx, f.maxRetries, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %s", resp.Status)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrFetchFailed, url, err)
	}
	return body, nil
}
