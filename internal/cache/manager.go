// Package cache serves authoritative market records through a TTL-managed
// read-through cache. Each (market, data kind) pair moves through three
// states: empty (never fetched), fresh (within TTL) and stale (past TTL but
// still on disk). Reads only fail outright while empty; once a snapshot
// exists they degrade to serving stale data instead.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketsched/internal/domain"
	"marketsched/internal/gather"
	"marketsched/internal/store"
)

// Snapshot states reported by Status.
const (
	StateEmpty = "empty"
	StateFresh = "fresh"
	StateStale = "stale"
)

// Journal reasons for refresh attempts.
const (
	ReasonMiss      = "miss"
	ReasonStale     = "stale"
	ReasonForce     = "force"
	ReasonScheduled = "scheduled"
)

// kindState holds the in-memory copy of one data kind's snapshot. refreshMu
// serializes fetches so concurrent readers never trigger duplicate downloads;
// mu guards the snapshot fields themselves.
type kindState[T any] struct {
	refreshMu sync.Mutex
	mu        sync.RWMutex
	loaded    bool
	rows      []T
	meta      store.Metadata
}

// Manager is the authoritative data cache for a single market. Reads load
// the persisted snapshot on first use, serve it while fresh, refresh it when
// stale and fall back to the stale copy if the refresh fails. A reader that
// arrives while another goroutine is already refreshing is served the prior
// snapshot immediately rather than blocking.
type Manager struct {
	marketID string
	snaps    store.SnapshotStore
	fetcher  gather.Fetcher
	ttl      time.Duration

	journal *store.Journal
	clock   domain.Clock
	log     *slog.Logger

	sq       kindState[domain.SQRecord]
	holidays kindState[domain.HolidayOverrideRecord]
}

// NewManager creates a cache manager for marketID backed by the given
// snapshot store and fetcher. Snapshots older than ttl count as stale.
func NewManager(marketID string, snaps store.SnapshotStore, fetcher gather.Fetcher, ttl time.Duration) *Manager {
	return &Manager{
		marketID: marketID,
		snaps:    snaps,
		fetcher:  fetcher,
		ttl:      ttl,
		clock:    domain.SystemClock{},
		log:      slog.Default().With("market", marketID),
	}
}

// SetJournal attaches a refresh journal. A nil journal disables recording.
func (m *Manager) SetJournal(j *store.Journal) { m.journal = j }

// SetClock replaces the wall clock. Tests use it to step through TTL expiry.
func (m *Manager) SetClock(c domain.Clock) { m.clock = c }

// SetLogger replaces the logger.
func (m *Manager) SetLogger(l *slog.Logger) { m.log = l.With("market", m.marketID) }

// MarketID returns the market this manager caches data for.
func (m *Manager) MarketID() string { return m.marketID }

// SQDates returns the cached SQ calendar. The bool reports whether the
// returned rows are stale. Callers must not modify the returned slice.
func (m *Manager) SQDates(ctx context.Context) ([]domain.SQRecord, bool, error) {
	return readThrough(ctx, m, &m.sq, domain.KindSQDates, m.snaps.ReadSQDates, m.fetchSQ, m.snaps.WriteSQDates)
}

// HolidayOverrides returns the cached holiday-trading decisions. The bool
// reports whether the returned rows are stale.
func (m *Manager) HolidayOverrides(ctx context.Context) ([]domain.HolidayOverrideRecord, bool, error) {
	return readThrough(ctx, m, &m.holidays, domain.KindHolidayOverrides, m.snaps.ReadHolidayOverrides, m.fetchHolidays, m.snaps.WriteHolidayOverrides)
}

// ForceRefresh refetches one kind regardless of TTL. On success the snapshot
// is replaced atomically; on failure the existing snapshot stays untouched.
func (m *Manager) ForceRefresh(ctx context.Context, kind domain.DataKind) error {
	return m.refreshKind(ctx, kind, ReasonForce)
}

// RefreshAll refetches every data kind, tagging journal entries with reason.
// All kinds are attempted even if one fails; failures are joined.
func (m *Manager) RefreshAll(ctx context.Context, reason string) error {
	var errs []error
	for _, kind := range domain.Kinds() {
		if err := m.refreshKind(ctx, kind, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) refreshKind(ctx context.Context, kind domain.DataKind, reason string) error {
	switch kind {
	case domain.KindSQDates:
		m.sq.refreshMu.Lock()
		defer m.sq.refreshMu.Unlock()
		return refreshLocked(ctx, m, &m.sq, kind, reason, m.fetchSQ, m.snaps.WriteSQDates)
	case domain.KindHolidayOverrides:
		m.holidays.refreshMu.Lock()
		defer m.holidays.refreshMu.Unlock()
		return refreshLocked(ctx, m, &m.holidays, kind, reason, m.fetchHolidays, m.snaps.WriteHolidayOverrides)
	default:
		return fmt.Errorf("unknown data kind %q", kind)
	}
}

// Clear deletes one kind's snapshot and metadata. Subsequent reads behave as
// if nothing was ever fetched.
func (m *Manager) Clear(ctx context.Context, kind domain.DataKind) error {
	switch kind {
	case domain.KindSQDates:
		return clearKind(ctx, m, &m.sq, kind)
	case domain.KindHolidayOverrides:
		return clearKind(ctx, m, &m.holidays, kind)
	default:
		return fmt.Errorf("unknown data kind %q", kind)
	}
}

// ClearAll deletes every kind's snapshot.
func (m *Manager) ClearAll(ctx context.Context) error {
	var errs []error
	for _, kind := range domain.Kinds() {
		if err := m.Clear(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KindStatus describes one kind's persisted snapshot.
type KindStatus struct {
	MarketID    string
	Kind        domain.DataKind
	State       string
	FetchedAt   time.Time
	ExpiresAt   time.Time
	RecordCount int
	Sources     []string
	Path        string
}

// Status reports the persisted state of every data kind without touching the
// network or mutating anything. An unreadable metadata sidecar is reported as
// empty; the next read will refetch and repair it.
func (m *Manager) Status(ctx context.Context) []KindStatus {
	now := m.clock.Now()
	out := make([]KindStatus, 0, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		st := KindStatus{
			MarketID: m.marketID,
			Kind:     kind,
			State:    StateEmpty,
			Path:     m.snaps.Path(m.marketID, kind),
		}
		meta, err := m.snaps.ReadMetadata(ctx, m.marketID, kind)
		switch {
		case err == nil:
			st.FetchedAt = meta.FetchedAt
			st.ExpiresAt = meta.FetchedAt.Add(m.ttl)
			st.RecordCount = meta.RecordCount
			st.Sources = meta.Sources
			if m.expired(meta.FetchedAt, now) {
				st.State = StateStale
			} else {
				st.State = StateFresh
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			m.log.Warn("unreadable snapshot metadata", "kind", kind, "err", err)
		}
		out = append(out, st)
	}
	return out
}

func (m *Manager) expired(fetchedAt, now time.Time) bool {
	return now.Sub(fetchedAt) > m.ttl
}

func (m *Manager) fetchSQ(ctx context.Context) ([]domain.SQRecord, []string, error) {
	res, err := m.fetcher.FetchSQDates(ctx)
	if err != nil {
		return nil, nil, err
	}
	return res.Records, res.Sources, nil
}

func (m *Manager) fetchHolidays(ctx context.Context) ([]domain.HolidayOverrideRecord, []string, error) {
	res, err := m.fetcher.FetchHolidayOverrides(ctx)
	if err != nil {
		return nil, nil, err
	}
	return res.Records, res.Sources, nil
}

// --- Generic read/refresh machinery

// Go methods cannot carry type parameters, so the per-kind plumbing lives in
// free functions that take the manager and kind state explicitly.

type readFunc[T any] func(ctx context.Context, marketID string) ([]T, store.Metadata, error)
type fetchFunc[T any] func(ctx context.Context) ([]T, []string, error)
type writeFunc[T any] func(ctx context.Context, marketID string, rows []T, fetchedAt time.Time, sources []string) error

// readThrough implements the read path: serve fresh data from memory, load
// the persisted snapshot on first use, fetch on empty, refresh on stale with
// fallback to the stale rows when the refresh fails.
func readThrough[T any](ctx context.Context, m *Manager, ks *kindState[T], kind domain.DataKind, read readFunc[T], fetch fetchFunc[T], write writeFunc[T]) ([]T, bool, error) {
	now := m.clock.Now()

	ks.mu.RLock()
	if ks.loaded && !m.expired(ks.meta.FetchedAt, now) {
		rows := ks.rows
		ks.mu.RUnlock()
		return rows, false, nil
	}
	loaded := ks.loaded
	ks.mu.RUnlock()

	if !loaded {
		loadSnapshot(ctx, m, ks, kind, read)
	}

	ks.mu.RLock()
	loaded = ks.loaded
	rows := ks.rows
	fetchedAt := ks.meta.FetchedAt
	ks.mu.RUnlock()

	if loaded && !m.expired(fetchedAt, now) {
		return rows, false, nil
	}

	if !loaded {
		return fetchEmpty(ctx, m, ks, kind, fetch, write)
	}

	// Stale with data on hand. Refresh unless someone already is; a reader
	// that loses the race is served the stale rows without waiting.
	if !ks.refreshMu.TryLock() {
		return rows, true, nil
	}
	defer ks.refreshMu.Unlock()

	// The refresh we raced against may have just finished.
	ks.mu.RLock()
	if ks.loaded && !m.expired(ks.meta.FetchedAt, m.clock.Now()) {
		fresh := ks.rows
		ks.mu.RUnlock()
		return fresh, false, nil
	}
	ks.mu.RUnlock()

	if err := refreshLocked(ctx, m, ks, kind, ReasonStale, fetch, write); err != nil {
		m.log.Warn("refresh failed, serving stale snapshot",
			"kind", kind, "fetched_at", fetchedAt, "err", err)
		return rows, true, nil
	}

	ks.mu.RLock()
	fresh := ks.rows
	ks.mu.RUnlock()
	return fresh, false, nil
}

// loadSnapshot pulls the persisted snapshot into memory once. A missing
// snapshot stays empty; an unreadable or corrupt one is discarded so the
// caller refetches from the authoritative source.
func loadSnapshot[T any](ctx context.Context, m *Manager, ks *kindState[T], kind domain.DataKind, read readFunc[T]) {
	rows, meta, err := read(ctx, m.marketID)
	switch {
	case err == nil:
		ks.mu.Lock()
		if !ks.loaded {
			ks.rows, ks.meta, ks.loaded = rows, meta, true
		}
		ks.mu.Unlock()
	case errors.Is(err, store.ErrNotFound):
	default:
		m.log.Warn("discarding unreadable snapshot", "kind", kind, "err", err)
	}
}

// fetchEmpty handles the only path that can fail outright: nothing cached and
// the fetch does not succeed. Callers block on the per-kind lock here because
// there is no prior snapshot to fall back on.
func fetchEmpty[T any](ctx context.Context, m *Manager, ks *kindState[T], kind domain.DataKind, fetch fetchFunc[T], write writeFunc[T]) ([]T, bool, error) {
	ks.refreshMu.Lock()
	defer ks.refreshMu.Unlock()

	// Another caller may have completed the first fetch while we waited.
	ks.mu.RLock()
	if ks.loaded {
		rows := ks.rows
		stale := m.expired(ks.meta.FetchedAt, m.clock.Now())
		ks.mu.RUnlock()
		return rows, stale, nil
	}
	ks.mu.RUnlock()

	if err := refreshLocked(ctx, m, ks, kind, ReasonMiss, fetch, write); err != nil {
		return nil, false, fmt.Errorf("%w: %s/%s: %w", domain.ErrCacheUnavailable, m.marketID, kind, err)
	}

	ks.mu.RLock()
	rows := ks.rows
	ks.mu.RUnlock()
	return rows, false, nil
}

// refreshLocked fetches, persists and swaps in a full replacement row set.
// The caller must hold ks.refreshMu. Every attempt lands in the journal.
func refreshLocked[T any](ctx context.Context, m *Manager, ks *kindState[T], kind domain.DataKind, reason string, fetch fetchFunc[T], write writeFunc[T]) error {
	started := m.clock.Now()
	m.log.Info("refreshing snapshot", "kind", kind, "reason", reason)

	rows, sources, err := fetch(ctx)
	if err != nil {
		m.recordAttempt(kind, reason, started, 0, sources, err)
		return err
	}
	fetchedAt := m.clock.Now()
	if err := write(ctx, m.marketID, rows, fetchedAt, sources); err != nil {
		m.recordAttempt(kind, reason, started, len(rows), sources, err)
		return fmt.Errorf("persist %s snapshot: %w", kind, err)
	}

	ks.mu.Lock()
	ks.rows = rows
	ks.meta = store.Metadata{
		MarketID:      m.marketID,
		Kind:          kind,
		SchemaVersion: domain.SchemaVersion,
		RecordCount:   len(rows),
		FetchedAt:     fetchedAt,
		Sources:       sources,
	}
	ks.loaded = true
	ks.mu.Unlock()

	m.recordAttempt(kind, reason, started, len(rows), sources, nil)
	m.log.Info("snapshot refreshed", "kind", kind, "records", len(rows), "took", m.clock.Now().Sub(started))
	return nil
}

// clearKind removes one kind's persisted snapshot and resets the in-memory
// copy. The refresh lock keeps a concurrent refresh from resurrecting the
// snapshot mid-clear.
func clearKind[T any](ctx context.Context, m *Manager, ks *kindState[T], kind domain.DataKind) error {
	ks.refreshMu.Lock()
	defer ks.refreshMu.Unlock()

	if err := m.snaps.Remove(ctx, m.marketID, kind); err != nil {
		return fmt.Errorf("clear %s/%s: %w", m.marketID, kind, err)
	}

	ks.mu.Lock()
	ks.loaded = false
	ks.rows = nil
	ks.meta = store.Metadata{}
	ks.mu.Unlock()

	m.log.Info("snapshot cleared", "kind", kind)
	return nil
}

func (m *Manager) recordAttempt(kind domain.DataKind, reason string, started time.Time, count int, sources []string, ferr error) {
	ev := store.RefreshEvent{
		MarketID:    m.marketID,
		Kind:        kind,
		Reason:      reason,
		StartedAt:   started,
		FinishedAt:  m.clock.Now(),
		OK:          ferr == nil,
		RecordCount: count,
		Sources:     sources,
	}
	if ferr != nil {
		ev.Err = ferr.Error()
	}
	if err := m.journal.Record(ev); err != nil {
		m.log.Warn("journal write failed", "kind", kind, "err", err)
	}
}
