// Package jpx declares the built-in JPX index futures and options market and
// assembles its data pipeline (workbook fetcher, parquet snapshot store, TTL
// cache) from configuration.
package jpx

import (
	"log/slog"
	"time"

	"marketsched/internal/cache"
	"marketsched/internal/config"
	"marketsched/internal/domain"
	jpxdata "marketsched/internal/gather/jpx"
	"marketsched/internal/market"
	"marketsched/internal/store"
)

const (
	MarketID   = "jpx-index"
	MarketName = "JPX Index Futures & Options"
)

var _ market.DataProvider = (*cache.Manager)(nil)

// Definition returns the JPX rule set: Tokyo time, weekends off, the
// exchange's fixed year-end closure, day session 08:45-15:45 and night
// session 17:00 into 06:00 the next morning.
func Definition() market.Definition {
	return market.Definition{
		ID:       MarketID,
		Name:     MarketName,
		Timezone: "Asia/Tokyo",
		RestDays: []time.Weekday{time.Saturday, time.Sunday},
		Closures: []domain.MonthDay{
			{Month: time.December, Day: 31},
			{Month: time.January, Day: 1},
			{Month: time.January, Day: 2},
			{Month: time.January, Day: 3},
		},
		Sessions: []market.SessionWindow{
			{Name: "day", Kind: market.SessionPrimary, Start: market.TimeOfDay{Hour: 8, Minute: 45}, End: market.TimeOfDay{Hour: 15, Minute: 45}},
			{Name: "night", Kind: market.SessionSecondary, Start: market.TimeOfDay{Hour: 17, Minute: 0}, End: market.TimeOfDay{Hour: 6, Minute: 0}},
		},
		SupportsSQ: true,
	}
}

// Build assembles the JPX market and its cache manager from cfg. journal may
// be nil to disable refresh recording; log may be nil to use the default.
func Build(cfg *config.Config, journal *store.Journal, log *slog.Logger) (*market.Market, *cache.Manager, error) {
	fetcher := jpxdata.NewFetcher(
		cfg.Fetch.SQURLTemplate,
		cfg.Fetch.HolidayURL,
		cfg.Fetch.YearsAhead,
		cfg.Fetch.MaxRetries,
		cfg.Fetch.RateLimitPerMin,
		time.Duration(cfg.Fetch.Timeout),
	)

	mgr := cache.NewManager(MarketID, store.NewParquetStore(cfg.Cache.Dir), fetcher, time.Duration(cfg.Cache.TTL))
	mgr.SetJournal(journal)
	if log != nil {
		mgr.SetLogger(log)
	}

	mkt, err := market.New(Definition(), mgr)
	if err != nil {
		return nil, nil, err
	}
	return mkt, mgr, nil
}
