// Package store persists authoritative data snapshots as Parquet files with
// JSON metadata sidecars, and keeps a SQLite journal of refresh outcomes.
package store

import (
	"context"
	"errors"
	"time"

	"marketsched/internal/domain"
)

// ErrNotFound is returned when no committed snapshot exists for a market and
// kind. Callers treat it as "never fetched", not as a failure.
var ErrNotFound = errors.New("snapshot not found")

// Metadata describes one committed snapshot. It lives in a sidecar next to
// the data file and is written last, so its presence marks the snapshot as
// complete.
type Metadata struct {
	MarketID      string          `json:"market_id"`
	Kind          domain.DataKind `json:"kind"`
	SchemaVersion int             `json:"schema_version"`
	RecordCount   int             `json:"record_count"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Sources       []string        `json:"sources"`
}

// SnapshotStore persists and retrieves authoritative data snapshots. Writes
// replace the previous snapshot wholesale; there is no partial update.
type SnapshotStore interface {
	// WriteSQDates atomically replaces the SQ calendar snapshot for a market.
	WriteSQDates(ctx context.Context, marketID string, rows []domain.SQRecord, fetchedAt time.Time, sources []string) error

	// ReadSQDates returns the committed SQ calendar snapshot for a market.
	// It returns ErrNotFound when no snapshot has ever been committed.
	ReadSQDates(ctx context.Context, marketID string) ([]domain.SQRecord, Metadata, error)

	// WriteHolidayOverrides atomically replaces the holiday override snapshot
	// for a market.
	WriteHolidayOverrides(ctx context.Context, marketID string, rows []domain.HolidayOverrideRecord, fetchedAt time.Time, sources []string) error

	// ReadHolidayOverrides returns the committed holiday override snapshot
	// for a market. It returns ErrNotFound when no snapshot exists.
	ReadHolidayOverrides(ctx context.Context, marketID string) ([]domain.HolidayOverrideRecord, Metadata, error)

	// ReadMetadata returns the metadata sidecar for a market and kind without
	// touching the data file. It returns ErrNotFound when no snapshot exists.
	ReadMetadata(ctx context.Context, marketID string, kind domain.DataKind) (Metadata, error)

	// Remove deletes the snapshot for a market and kind. Removing a snapshot
	// that does not exist is not an error.
	Remove(ctx context.Context, marketID string, kind domain.DataKind) error

	// Path returns the filesystem path of the data file for a market and
	// kind, whether or not a snapshot exists there.
	Path(marketID string, kind domain.DataKind) string
}
