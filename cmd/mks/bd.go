package main

import (
	"context"
	"flag"
	"fmt"
)

func runBD(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mks bd <is|next|prev|list|count> [options] [args]")
	}
	sub := args[0]

	fs := flag.NewFlagSet("bd "+sub, flag.ExitOnError)
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
	ctx := context.Background()

	switch sub {
	case "is":
		date, err := dateArg(rest, 0, mkt)
		if err != nil {
			return err
		}
		ok, err := mkt.IsBusinessDay(ctx, date)
		if err != nil {
			return err
		}
		return emit(*format, map[string]any{
			"market":          mkt.ID(),
			"date":            date.String(),
			"is_business_day": ok,
		})

	case "next":
		date, err := dateArg(rest, 0, mkt)
		if err != nil {
			return err
		}
		next, err := mkt.NextBusinessDay(ctx, date)
		if err != nil {
			return err
		}
		return emit(*format, map[string]any{
			"market":            mkt.ID(),
			"date":              date.String(),
			"next_business_day": next.String(),
		})

	case "prev":
		date, err := dateArg(rest, 0, mkt)
		if err != nil {
			return err
		}
		prev, err := mkt.PreviousBusinessDay(ctx, date)
		if err != nil {
			return err
		}
		return emit(*format, map[string]any{
			"market":                mkt.ID(),
			"date":                  date.String(),
			"previous_business_day": prev.String(),
		})

	case "list", "count":
		if len(rest) < 2 {
			return fmt.Errorf("usage: mks bd %s [options] <start-date> <end-date>", sub)
		}
		start, err := dateArg(rest, 0, mkt)
		if err != nil {
			return err
		}
		end, err := dateArg(rest, 1, mkt)
		if err != nil {
			return err
		}
		days, err := mkt.BusinessDaysInRange(ctx, start, end)
		if err != nil {
			return err
		}
		result := map[string]any{
			"market":     mkt.ID(),
			"start_date": start.String(),
			"end_date":   end.String(),
			"count":      len(days),
		}
		if sub == "list" {
			list := make([]string, 0, len(days))
			for _, d := range days {
				list = append(list, d.String())
			}
			result["business_days"] = list
		}
		return emit(*format, result)

	default:
		return fmt.Errorf("unknown bd subcommand %q (want is, next, prev, list or count)", sub)
	}
}
