// mks answers market calendar questions from the command line: business
// days, SQ dates and trading sessions, all backed by the local snapshot
// cache of official JPX data.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"marketsched/internal/cache"
	"marketsched/internal/config"
	"marketsched/internal/domain"
	"marketsched/internal/jpx"
	"marketsched/internal/market"
	"marketsched/internal/store"
	"marketsched/internal/util"
)

const version = "0.1.0"

const defaultConfigPath = "config/marketsched.yaml"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mks <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  bd       Business day queries (is, next, prev, list, count)\n")
		fmt.Fprintf(os.Stderr, "  sq       SQ date queries (get, list, is)\n")
		fmt.Fprintf(os.Stderr, "  ss       Session queries (get, is-trading)\n")
		fmt.Fprintf(os.Stderr, "  cache    Cache management (update, status, clear, history)\n")
		fmt.Fprintf(os.Stderr, "  markets  List registered markets\n")
		fmt.Fprintf(os.Stderr, "  version  Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("mks %s\n", version)

	case "bd":
		err = runBD(os.Args[2:])

	case "sq":
		err = runSQ(os.Args[2:])

	case "ss":
		err = runSS(os.Args[2:])

	case "cache":
		err = runCache(os.Args[2:])

	case "markets":
		err = runMarkets(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, domain.ErrCacheUnavailable) || errors.Is(err, domain.ErrDataNotFound) {
			fmt.Fprintln(os.Stderr, "hint: run 'mks cache update' to fetch the latest official data")
		}
		os.Exit(1)
	}
}

// app bundles everything a subcommand needs: configuration, the market
// registry and the per-market cache managers.
type app struct {
	cfg      *config.Config
	registry *market.Registry
	managers map[string]*cache.Manager
	journal  *store.Journal
}

func newApp() (*app, error) {
	path := os.Getenv("MKS_CONFIG")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so JSON results on stdout stay machine-readable.
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	journal, err := store.OpenJournal(cfg.Journal.SQLitePath)
	if err != nil {
		slog.Warn("refresh journal unavailable", "path", cfg.Journal.SQLitePath, "err", err)
		journal = nil
	}

	mkt, mgr, err := jpx.Build(cfg, journal, nil)
	if err != nil {
		return nil, fmt.Errorf("build jpx market: %w", err)
	}

	registry := market.NewRegistry()
	if err := registry.Register(mkt); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		managers: map[string]*cache.Manager{mkt.ID(): mgr},
		journal:  journal,
	}, nil
}

func (a *app) close() {
	a.journal.Close()
}

func (a *app) manager(id string) (*cache.Manager, error) {
	mgr, ok := a.managers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrMarketNotFound, id)
	}
	return mgr, nil
}

// managersFor resolves -market values for cache commands; "all" targets
// every registered market.
func (a *app) managersFor(id string) ([]*cache.Manager, error) {
	if id == "all" {
		out := make([]*cache.Manager, 0, len(a.managers))
		for _, m := range a.registry.All() {
			if mgr, ok := a.managers[m.ID()]; ok {
				out = append(out, mgr)
			}
		}
		return out, nil
	}
	mgr, err := a.manager(id)
	if err != nil {
		return nil, err
	}
	return []*cache.Manager{mgr}, nil
}

func addMarketFlag(fs *flag.FlagSet) *string {
	return fs.String("market", jpx.MarketID, "market identifier")
}

func addFormatFlag(fs *flag.FlagSet) *string {
	return fs.String("format", "json", "output format: json or text")
}

// dateArg reads a YYYY-MM-DD positional argument, defaulting to today in the
// market's own timezone.
func dateArg(args []string, idx int, mkt *market.Market) (domain.Date, error) {
	if len(args) <= idx || args[idx] == "" {
		return domain.DateOf(time.Now().In(mkt.Location())), nil
	}
	return domain.ParseDate(args[idx])
}

func runMarkets(args []string) error {
	fs := flag.NewFlagSet("markets", flag.ExitOnError)
	format := addFormatFlag(fs)
	fs.Parse(args)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries := make([]map[string]any, 0, len(a.registry.IDs()))
	for _, m := range a.registry.All() {
		def := m.Definition()
		sessions := make([]string, 0, len(def.Sessions))
		for _, w := range def.Sessions {
			sessions = append(sessions, w.String())
		}
		entries = append(entries, map[string]any{
			"id":          m.ID(),
			"name":        m.Name(),
			"timezone":    def.Timezone,
			"sessions":    sessions,
			"supports_sq": def.SupportsSQ,
		})
	}
	return emit(*format, map[string]any{"markets": entries})
}
