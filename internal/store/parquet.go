package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketsched/internal/domain"
)

// Compile-time interface check.
var _ SnapshotStore = (*ParquetStore)(nil)

// ParquetStore implements SnapshotStore using Parquet data files and JSON
// metadata sidecars on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// SQRow is the Parquet schema for SQ calendar rows. Dates are stored as
// YYYY-MM-DD strings and contract months as YYYYMM strings.
type SQRow struct {
	ContractMonth   string `parquet:"contract_month"`
	LastTradingDay  string `parquet:"last_trading_day"`
	SQDate          string `parquet:"sq_date"`
	ProductCategory string `parquet:"product_category"`
}

// HolidayRow is the Parquet schema for holiday override rows.
type HolidayRow struct {
	Date      string `parquet:"date"`
	Name      string `parquet:"name"`
	IsTrading bool   `parquet:"is_trading"`
	Confirmed bool   `parquet:"confirmed"`
}

// ---------------------------------------------------------------------------
// SQ calendar snapshots
// ---------------------------------------------------------------------------

// WriteSQDates writes the SQ calendar snapshot for a market:
//
//	<DataDir>/<marketID>/sq_dates.parquet
//	<DataDir>/<marketID>/sq_dates.meta.json
//
// The data file is replaced first and the metadata sidecar last, each via a
// temp-file rename, so a crash can never leave a committed snapshot pointing
// at missing data.
func (s *ParquetStore) WriteSQDates(_ context.Context, marketID string, rows []domain.SQRecord, fetchedAt time.Time, sources []string) error {
	records := make([]SQRow, 0, len(rows))
	for _, r := range rows {
		records = append(records, SQRow{
			ContractMonth:   r.ContractMonth.String(),
			LastTradingDay:  r.LastTradingDay.String(),
			SQDate:          r.SQDate.String(),
			ProductCategory: r.ProductCategory,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ContractMonth < records[j].ContractMonth
	})

	return commit(s, marketID, domain.KindSQDates, records, fetchedAt, sources)
}

// ReadSQDates reads the committed SQ calendar snapshot for a market.
func (s *ParquetStore) ReadSQDates(_ context.Context, marketID string) ([]domain.SQRecord, Metadata, error) {
	records, meta, err := readSnapshot[SQRow](s, marketID, domain.KindSQDates)
	if err != nil {
		return nil, Metadata{}, err
	}

	rows := make([]domain.SQRecord, 0, len(records))
	for _, r := range records {
		cm, err := domain.ParseContractMonth(r.ContractMonth)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("%w: sq row: %v", domain.ErrInvalidDataFormat, err)
		}
		ltd, err := domain.ParseDate(r.LastTradingDay)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("%w: sq row: %v", domain.ErrInvalidDataFormat, err)
		}
		sq, err := domain.ParseDate(r.SQDate)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("%w: sq row: %v", domain.ErrInvalidDataFormat, err)
		}
		rows = append(rows, domain.SQRecord{
			ContractMonth:   cm,
			LastTradingDay:  ltd,
			SQDate:          sq,
			ProductCategory: r.ProductCategory,
		})
	}
	return rows, meta, nil
}

// ---------------------------------------------------------------------------
// Holiday override snapshots
// ---------------------------------------------------------------------------

// WriteHolidayOverrides writes the holiday override snapshot for a market
// using the same commit protocol as WriteSQDates.
func (s *ParquetStore) WriteHolidayOverrides(_ context.Context, marketID string, rows []domain.HolidayOverrideRecord, fetchedAt time.Time, sources []string) error {
	records := make([]HolidayRow, 0, len(rows))
	for _, r := range rows {
		records = append(records, HolidayRow{
			Date:      r.Date.String(),
			Name:      r.Name,
			IsTrading: r.IsTrading,
			Confirmed: r.Confirmed,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})

	return commit(s, marketID, domain.KindHolidayOverrides, records, fetchedAt, sources)
}

// ReadHolidayOverrides reads the committed holiday override snapshot for a
// market.
func (s *ParquetStore) ReadHolidayOverrides(_ context.Context, marketID string) ([]domain.HolidayOverrideRecord, Metadata, error) {
	records, meta, err := readSnapshot[HolidayRow](s, marketID, domain.KindHolidayOverrides)
	if err != nil {
		return nil, Metadata{}, err
	}

	rows := make([]domain.HolidayOverrideRecord, 0, len(records))
	for _, r := range records {
		d, err := domain.ParseDate(r.Date)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("%w: holiday row: %v", domain.ErrInvalidDataFormat, err)
		}
		rows = append(rows, domain.HolidayOverrideRecord{
			Date:      d,
			Name:      r.Name,
			IsTrading: r.IsTrading,
			Confirmed: r.Confirmed,
		})
	}
	return rows, meta, nil
}

// ---------------------------------------------------------------------------
// Metadata and removal
// ---------------------------------------------------------------------------

// ReadMetadata reads the metadata sidecar for a market and kind.
func (s *ParquetStore) ReadMetadata(_ context.Context, marketID string, kind domain.DataKind) (Metadata, error) {
	return s.readMeta(marketID, kind)
}

// Remove deletes the snapshot for a market and kind. The metadata sidecar
// goes first so a half-removed snapshot reads as absent, not corrupt.
func (s *ParquetStore) Remove(_ context.Context, marketID string, kind domain.DataKind) error {
	if err := os.Remove(s.metaPath(marketID, kind)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s/%s metadata: %w", marketID, kind, err)
	}
	if err := os.Remove(s.Path(marketID, kind)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s/%s data: %w", marketID, kind, err)
	}
	return nil
}

// Path returns the data file path for a market and kind.
// Layout: <DataDir>/<marketID>/<kind>.parquet
func (s *ParquetStore) Path(marketID string, kind domain.DataKind) string {
	return filepath.Join(s.DataDir, marketID, string(kind)+".parquet")
}

// metaPath returns the metadata sidecar path for a market and kind.
func (s *ParquetStore) metaPath(marketID string, kind domain.DataKind) string {
	return filepath.Join(s.DataDir, marketID, string(kind)+".meta.json")
}

// ---------------------------------------------------------------------------
// Commit protocol
// ---------------------------------------------------------------------------

// commit writes the data file, then the metadata sidecar, each atomically.
// The sidecar rename is the commit point.
func commit[T any](s *ParquetStore, marketID string, kind domain.DataKind, records []T, fetchedAt time.Time, sources []string) error {
	path := s.Path(marketID, kind)
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing %s/%s snapshot: %w", marketID, kind, err)
	}

	meta := Metadata{
		MarketID:      marketID,
		Kind:          kind,
		SchemaVersion: domain.SchemaVersion,
		RecordCount:   len(records),
		FetchedAt:     fetchedAt,
		Sources:       sources,
	}
	if err := s.writeMeta(marketID, kind, meta); err != nil {
		return fmt.Errorf("writing %s/%s metadata: %w", marketID, kind, err)
	}
	return nil
}

// readSnapshot loads and cross-checks one snapshot: metadata first (absence
// means not found), then the data file, then record count and schema version
// against the sidecar.
func readSnapshot[T any](s *ParquetStore, marketID string, kind domain.DataKind) ([]T, Metadata, error) {
	meta, err := s.readMeta(marketID, kind)
	if err != nil {
		return nil, Metadata{}, err
	}
	if meta.SchemaVersion != domain.SchemaVersion {
		return nil, Metadata{}, fmt.Errorf("%w: %s/%s schema version %d, want %d",
			domain.ErrInvalidDataFormat, marketID, kind, meta.SchemaVersion, domain.SchemaVersion)
	}

	records, err := readParquetFile[T](s.Path(marketID, kind))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: reading %s/%s data: %v",
			domain.ErrInvalidDataFormat, marketID, kind, err)
	}
	if len(records) != meta.RecordCount {
		return nil, Metadata{}, fmt.Errorf("%w: %s/%s has %d records, metadata says %d",
			domain.ErrInvalidDataFormat, marketID, kind, len(records), meta.RecordCount)
	}
	return records, meta, nil
}

func (s *ParquetStore) writeMeta(marketID string, kind domain.DataKind, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	path := s.metaPath(marketID, kind)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *ParquetStore) readMeta(marketID string, kind domain.DataKind) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(marketID, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("%s/%s: %w", marketID, kind, ErrNotFound)
		}
		return Metadata{}, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s/%s metadata: %v", domain.ErrInvalidDataFormat, marketID, kind, err)
	}
	return meta, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
