package main

import (
	"flag"
	"fmt"
	"time"

	"marketsched/internal/domain"
	"marketsched/internal/market"
)

func runSS(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mks ss <get|is-trading> [options] [instant]")
	}
	sub := args[0]

	fs := flag.NewFlagSet("ss "+sub, flag.ExitOnError)
	marketID := addMarketFlag(fs)
	format := addFormatFlag(fs)
	fs.Parse(args[1:])
	rest := fs.Args()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	mkt, err := a.registry.Get(*marketID)
	if err != nil {
		return err
	}

	info, err := sessionInfoArg(rest, mkt)
	if err != nil {
		return err
	}

	switch sub {
	case "get":
		result := map[string]any{
			"market":       mkt.ID(),
			"datetime":     info.Instant.Format(time.RFC3339),
			"session":      string(info.Kind),
			"trading_date": info.TradingDate.String(),
		}
		if info.Window != nil {
			result["window"] = info.Window.String()
		}
		return emit(*format, result)

	case "is-trading":
		return emit(*format, map[string]any{
			"market":           mkt.ID(),
			"datetime":         info.Instant.Format(time.RFC3339),
			"is_trading_hours": info.Kind != market.SessionClosed,
		})

	default:
		return fmt.Errorf("unknown ss subcommand %q (want get or is-trading)", sub)
	}
}

// sessionInfoArg resolves the optional instant argument. Instants must carry
// an explicit offset; without an argument the current instant is used.
func sessionInfoArg(args []string, mkt *market.Market) (market.SessionInfo, error) {
	if len(args) == 0 {
		return mkt.SessionInfoNow(), nil
	}
	at, err := domain.ParseInstant(args[0])
	if err != nil {
		return market.SessionInfo{}, err
	}
	return mkt.SessionInfoAt(at), nil
}
