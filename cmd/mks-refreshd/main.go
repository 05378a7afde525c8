// mks-refreshd keeps market snapshot caches fresh on a cron schedule so mks
// queries never hit a cold or stale cache in the first place.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"marketsched/internal/cache"
	"marketsched/internal/config"
	"marketsched/internal/jpx"
	"marketsched/internal/store"
	"marketsched/internal/util"
)

func main() {
	runNow := flag.Bool("run-now", false, "refresh once at startup regardless of schedule")
	flag.Parse()

	cfgPath := os.Getenv("MKS_CONFIG")
	if cfgPath == "" {
		if _, err := os.Stat("config/marketsched.yaml"); err == nil {
			cfgPath = "config/marketsched.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	journal, err := store.OpenJournal(cfg.Journal.SQLitePath)
	if err != nil {
		slog.Warn("refresh journal unavailable", "path", cfg.Journal.SQLitePath, "err", err)
		journal = nil
	}
	defer journal.Close()

	_, mgr, err := jpx.Build(cfg, journal, logger)
	if err != nil {
		log.Fatalf("failed to build jpx market: %v", err)
	}
	managers := []*cache.Manager{mgr}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refresh := func() {
		for _, m := range managers {
			if err := m.RefreshAll(ctx, cache.ReasonScheduled); err != nil {
				slog.Error("refresh failed", "market", m.MarketID(), "err", err)
				continue
			}
			slog.Info("refresh complete", "market", m.MarketID())
		}
	}

	if cfg.Refresh.RunOnStart || *runNow {
		refresh()
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Refresh.Cron, refresh); err != nil {
		log.Fatalf("invalid cron expression %q: %v", cfg.Refresh.Cron, err)
	}
	c.Start()
	slog.Info("refresh daemon started", "cron", cfg.Refresh.Cron, "markets", len(managers))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	slog.Info("refresh daemon stopped")
}
