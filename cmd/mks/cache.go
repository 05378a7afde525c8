package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"marketsched/internal/cache"
	"marketsched/internal/domain"
)

func runCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mks cache <update|status|clear|history> [options]")
	}
	sub := args[0]

	fs := flag.NewFlagSet("cache "+sub, flag.ExitOnError)
	marketID := fs.String("market", "all", "market identifier, or all")
	format := addFormatFlag(fs)
	kind := fs.String("kind", "", "data kind: sq_dates or holiday_overrides (default both)")
	limit := fs.Int("limit", 20, "history entries to show")
	fs.Parse(args[1:])

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if *kind != "" && !domain.DataKind(*kind).Valid() {
		return fmt.Errorf("unknown data kind %q (want sq_dates or holiday_overrides)", *kind)
	}
	ctx := context.Background()

	switch sub {
	case "update":
		return cacheUpdate(ctx, a, *marketID, *kind, *format)
	case "status":
		return cacheStatus(ctx, a, *marketID, *format)
	case "clear":
		return cacheClear(ctx, a, *marketID, *kind, *format)
	case "history":
		return cacheHistory(a, *marketID, *limit, *format)
	default:
		return fmt.Errorf("unknown cache subcommand %q (want update, status, clear or history)", sub)
	}
}

func cacheUpdate(ctx context.Context, a *app, marketID, kind, format string) error {
	managers, err := a.managersFor(marketID)
	if err != nil {
		return err
	}

	updated := make([]map[string]any, 0, 2*len(managers))
	for _, mgr := range managers {
		if kind != "" {
			err = mgr.ForceRefresh(ctx, domain.DataKind(kind))
		} else {
			err = mgr.RefreshAll(ctx, cache.ReasonForce)
		}
		if err != nil {
			return fmt.Errorf("refresh %s: %w", mgr.MarketID(), err)
		}
		for _, st := range mgr.Status(ctx) {
			if kind != "" && st.Kind != domain.DataKind(kind) {
				continue
			}
			updated = append(updated, statusEntry(st))
		}
	}
	return emit(format, map[string]any{"updated": updated})
}

func cacheStatus(ctx context.Context, a *app, marketID, format string) error {
	managers, err := a.managersFor(marketID)
	if err != nil {
		return err
	}

	entries := make([]map[string]any, 0, 2*len(managers))
	for _, mgr := range managers {
		for _, st := range mgr.Status(ctx) {
			entries = append(entries, statusEntry(st))
		}
	}
	return emit(format, map[string]any{"caches": entries})
}

func cacheClear(ctx context.Context, a *app, marketID, kind, format string) error {
	managers, err := a.managersFor(marketID)
	if err != nil {
		return err
	}

	var cleared []string
	for _, mgr := range managers {
		if kind != "" {
			if err := mgr.Clear(ctx, domain.DataKind(kind)); err != nil {
				return fmt.Errorf("clear %s/%s: %w", mgr.MarketID(), kind, err)
			}
			cleared = append(cleared, mgr.MarketID()+"/"+kind)
			continue
		}
		if err := mgr.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", mgr.MarketID(), err)
		}
		for _, k := range domain.Kinds() {
			cleared = append(cleared, mgr.MarketID()+"/"+string(k))
		}
	}
	return emit(format, map[string]any{"cleared": cleared})
}

func cacheHistory(a *app, marketID string, limit int, format string) error {
	if a.journal == nil {
		return fmt.Errorf("refresh journal unavailable (check journal.sqlite_path)")
	}
	if marketID == "all" {
		marketID = ""
	}

	events, err := a.journal.Recent(marketID, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	entries := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		entry := map[string]any{
			"market":       ev.MarketID,
			"kind":         string(ev.Kind),
			"reason":       ev.Reason,
			"started_at":   ev.StartedAt.UTC().Format(time.RFC3339),
			"finished_at":  ev.FinishedAt.UTC().Format(time.RFC3339),
			"ok":           ev.OK,
			"record_count": ev.RecordCount,
		}
		if len(ev.Sources) > 0 {
			entry["sources"] = ev.Sources
		}
		if ev.Err != "" {
			entry["error"] = ev.Err
		}
		entries = append(entries, entry)
	}
	return emit(format, map[string]any{"history": entries})
}

func statusEntry(st cache.KindStatus) map[string]any {
	entry := map[string]any{
		"market":       st.MarketID,
		"kind":         string(st.Kind),
		"state":        st.State,
		"record_count": st.RecordCount,
		"path":         st.Path,
	}
	if st.State != cache.StateEmpty {
		entry["fetched_at"] = st.FetchedAt.Format(time.RFC3339)
		entry["expires_at"] = st.ExpiresAt.Format(time.RFC3339)
	}
	if len(st.Sources) > 0 {
		entry["sources"] = st.Sources
	}
	return entry
}
