package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"marketsched/internal/domain"
	"marketsched/internal/gather"
	"marketsched/internal/store"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher serves canned records and counts calls. Setting fail makes
// every fetch error; setting gate/started turns fetches into blocking calls
// so tests can observe an in-flight refresh.
type fakeFetcher struct {
	mu         sync.Mutex
	sqCalls    int
	holCalls   int
	sqRecords  []domain.SQRecord
	holRecords []domain.HolidayOverrideRecord
	fail       bool

	started chan struct{}
	gate    chan struct{}
}

var _ gather.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchSQDates(ctx context.Context) (*gather.SQResult, error) {
	f.mu.Lock()
	f.sqCalls++
	fail := f.fail
	records := f.sqRecords
	started, gate := f.started, f.gate
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-gate
	}
	if fail {
		return nil, fmt.Errorf("%w: source offline", domain.ErrFetchFailed)
	}
	return &gather.SQResult{Records: records, Sources: []string{"fake://sq"}}, nil
}

func (f *fakeFetcher) FetchHolidayOverrides(ctx context.Context) (*gather.HolidayResult, error) {
	f.mu.Lock()
	f.holCalls++
	fail := f.fail
	records := f.holRecords
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: source offline", domain.ErrFetchFailed)
	}
	return &gather.HolidayResult{Records: records, Sources: []string{"fake://holiday"}}, nil
}

func (f *fakeFetcher) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sqCalls, f.holCalls
}

func sqFixture(month time.Month) []domain.SQRecord {
	return []domain.SQRecord{{
		ContractMonth:   domain.ContractMonth{Year: 2026, Month: month},
		LastTradingDay:  domain.NewDate(2026, month, 12),
		SQDate:          domain.NewDate(2026, month, 13),
		ProductCategory: "index_futures_options",
	}}
}

func holFixture() []domain.HolidayOverrideRecord {
	return []domain.HolidayOverrideRecord{{
		Date:      domain.NewDate(2026, time.September, 21),
		Name:      "敬老の日",
		IsTrading: true,
		Confirmed: true,
	}}
}

func newTestManager(t *testing.T, f gather.Fetcher, c domain.Clock, ttl time.Duration) *Manager {
	t.Helper()
	m := NewManager("m1", store.NewParquetStore(t.TempDir()), f, ttl)
	m.SetClock(c)
	m.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m
}

func TestManagerFetchOnEmpty(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March), holRecords: holFixture()}
	m := newTestManager(t, f, clock, time.Hour)

	rows, stale, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("SQDates: %v", err)
	}
	if stale {
		t.Error("freshly fetched rows flagged stale")
	}
	if len(rows) != 1 || rows[0].SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("rows = %+v, want the March fixture", rows)
	}
	if sq, _ := f.calls(); sq != 1 {
		t.Errorf("fetch count = %d, want 1", sq)
	}
}

func TestManagerIdempotentFreshReads(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	first, _, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, stale, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if stale {
		t.Error("second read flagged stale inside TTL")
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Errorf("reads differ: %+v vs %+v", first, second)
	}
	if sq, _ := f.calls(); sq != 1 {
		t.Errorf("fetch count = %d, want 1 for two fresh reads", sq)
	}
}

func TestManagerClearThenReadFetchesAgain(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March), holRecords: holFixture()}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}
	if err := m.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	for _, st := range m.Status(context.Background()) {
		if st.State != StateEmpty {
			t.Errorf("status after clear: %s = %s, want empty", st.Kind, st.State)
		}
	}

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("read after clear: %v", err)
	}
	if sq, _ := f.calls(); sq != 2 {
		t.Errorf("fetch count = %d, want exactly 2 across refresh-clear-read", sq)
	}
}

func TestManagerStaleTriggersRefresh(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	f.mu.Lock()
	f.sqRecords = sqFixture(time.April)
	f.mu.Unlock()
	clock.Advance(2 * time.Hour)

	rows, stale, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if stale {
		t.Error("successful refresh still flagged stale")
	}
	if rows[0].SQDate != domain.NewDate(2026, time.April, 13) {
		t.Errorf("rows = %+v, want the refreshed April fixture", rows)
	}
	if sq, _ := f.calls(); sq != 2 {
		t.Errorf("fetch count = %d, want 2", sq)
	}
}

func TestManagerStaleFallbackOnFetchFailure(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	f.mu.Lock()
	f.fail = true
	f.mu.Unlock()
	clock.Advance(2 * time.Hour)

	rows, stale, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("stale fallback returned error: %v", err)
	}
	if !stale {
		t.Error("fallback rows not flagged stale")
	}
	if len(rows) != 1 || rows[0].SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("rows = %+v, want the original March fixture", rows)
	}
}

func TestManagerEmptyFetchFailure(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{fail: true}
	m := newTestManager(t, f, clock, time.Hour)

	_, _, err := m.SQDates(context.Background())
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Errorf("err = %v, want ErrCacheUnavailable", err)
	}
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Errorf("err = %v, want the fetch failure in the chain", err)
	}
}

func TestManagerForceRefreshIgnoresTTL(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	f.mu.Lock()
	f.sqRecords = sqFixture(time.April)
	f.mu.Unlock()

	if err := m.ForceRefresh(context.Background(), domain.KindSQDates); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	rows, stale, err := m.SQDates(context.Background())
	if err != nil || stale {
		t.Fatalf("read after force: rows=%v stale=%v err=%v", rows, stale, err)
	}
	if rows[0].SQDate != domain.NewDate(2026, time.April, 13) {
		t.Errorf("rows = %+v, want the April fixture despite fresh TTL", rows)
	}
	if sq, _ := f.calls(); sq != 2 {
		t.Errorf("fetch count = %d, want 2", sq)
	}
}

func TestManagerForceRefreshFailureKeepsSnapshot(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	f.mu.Lock()
	f.fail = true
	f.mu.Unlock()

	err := m.ForceRefresh(context.Background(), domain.KindSQDates)
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("ForceRefresh err = %v, want ErrFetchFailed", err)
	}

	rows, stale, err := m.SQDates(context.Background())
	if err != nil || stale {
		t.Fatalf("read after failed force: stale=%v err=%v", stale, err)
	}
	if rows[0].SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("rows = %+v, want the untouched March snapshot", rows)
	}
}

func TestManagerStatusLifecycle(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March), holRecords: holFixture()}
	m := newTestManager(t, f, clock, time.Hour)

	for _, st := range m.Status(context.Background()) {
		if st.State != StateEmpty {
			t.Errorf("initial %s state = %s, want empty", st.Kind, st.State)
		}
		if st.Path == "" {
			t.Errorf("%s status missing path", st.Kind)
		}
	}

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("read: %v", err)
	}

	statuses := m.Status(context.Background())
	var sqStatus *KindStatus
	for i := range statuses {
		if statuses[i].Kind == domain.KindSQDates {
			sqStatus = &statuses[i]
		}
	}
	if sqStatus == nil {
		t.Fatal("no sq_dates status entry")
	}
	if sqStatus.State != StateFresh {
		t.Errorf("state = %s, want fresh", sqStatus.State)
	}
	if sqStatus.RecordCount != 1 {
		t.Errorf("record count = %d, want 1", sqStatus.RecordCount)
	}
	if want := sqStatus.FetchedAt.Add(time.Hour); !sqStatus.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want fetched_at + ttl", sqStatus.ExpiresAt)
	}

	clock.Advance(2 * time.Hour)
	for _, st := range m.Status(context.Background()) {
		if st.Kind == domain.KindSQDates && st.State != StateStale {
			t.Errorf("state after TTL = %s, want stale", st.State)
		}
	}

	// Status never fetches.
	if sq, _ := f.calls(); sq != 1 {
		t.Errorf("fetch count = %d after status calls, want 1", sq)
	}
}

func TestManagerJournalRecords(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March), holRecords: holFixture()}
	m := newTestManager(t, f, clock, time.Hour)

	j, err := store.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()
	m.SetJournal(j)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := m.ForceRefresh(context.Background(), domain.KindSQDates); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}

	events, err := j.Recent("m1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("journal has %d events, want 2", len(events))
	}
	if events[0].Reason != ReasonForce || events[1].Reason != ReasonMiss {
		t.Errorf("reasons = %s, %s, want force then miss", events[0].Reason, events[1].Reason)
	}
	for _, ev := range events {
		if !ev.OK || ev.RecordCount != 1 || ev.Kind != domain.KindSQDates {
			t.Errorf("event %+v, want ok sq_dates with 1 record", ev)
		}
	}
}

func TestManagerReloadsPersistedSnapshot(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	dir := t.TempDir()

	f1 := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m1 := NewManager("m1", store.NewParquetStore(dir), f1, time.Hour)
	m1.SetClock(clock)
	m1.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, _, err := m1.SQDates(context.Background()); err != nil {
		t.Fatalf("first manager read: %v", err)
	}

	// A fresh process finds the snapshot on disk and never fetches.
	f2 := &fakeFetcher{}
	m2 := NewManager("m1", store.NewParquetStore(dir), f2, time.Hour)
	m2.SetClock(clock)
	m2.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	rows, stale, err := m2.SQDates(context.Background())
	if err != nil {
		t.Fatalf("second manager read: %v", err)
	}
	if stale {
		t.Error("persisted snapshot inside TTL flagged stale")
	}
	if len(rows) != 1 || rows[0].SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("rows = %+v, want the persisted March fixture", rows)
	}
	if sq, _ := f2.calls(); sq != 0 {
		t.Errorf("second manager fetched %d times, want 0", sq)
	}
}

func TestManagerConcurrentEmptyReadsFetchOnce(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.SQDates(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read: %v", err)
	}
	if sq, _ := f.calls(); sq != 1 {
		t.Errorf("fetch count = %d for 8 concurrent empty reads, want 1", sq)
	}
}

func TestManagerReaderDuringRefreshGetsStaleNow(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{sqRecords: sqFixture(time.March)}
	m := newTestManager(t, f, clock, time.Hour)

	if _, _, err := m.SQDates(context.Background()); err != nil {
		t.Fatalf("initial read: %v", err)
	}
	clock.Advance(2 * time.Hour)

	f.mu.Lock()
	f.started = make(chan struct{})
	f.gate = make(chan struct{})
	f.sqRecords = sqFixture(time.April)
	f.mu.Unlock()

	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		m.SQDates(context.Background())
	}()
	<-f.started // refresh is now in flight and holding the per-kind lock

	rows, stale, err := m.SQDates(context.Background())
	if err != nil {
		t.Fatalf("read during refresh: %v", err)
	}
	if !stale {
		t.Error("read during in-flight refresh not flagged stale")
	}
	if rows[0].SQDate != domain.NewDate(2026, time.March, 13) {
		t.Errorf("rows = %+v, want the prior March snapshot", rows)
	}

	close(f.gate)
	<-refreshed

	rows, stale, err = m.SQDates(context.Background())
	if err != nil || stale {
		t.Fatalf("read after refresh: stale=%v err=%v", stale, err)
	}
	if rows[0].SQDate != domain.NewDate(2026, time.April, 13) {
		t.Errorf("rows = %+v, want the refreshed April fixture", rows)
	}
}
