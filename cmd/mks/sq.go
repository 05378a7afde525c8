package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"marketsched/internal/domain"
)

func runSQ(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mks sq <get|list|is> [options] [args]")
	}
	sub := args[0]

	fs := flag.NewFlagSet("sq "+sub, flag.ExitOnError)
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
	case "get":
		cm, err := contractMonthArgs(rest)
		if err != nil {
			return err
		}
		date, err := mkt.SQDate(ctx, cm)
		if err != nil {
			return err
		}
		return emit(*format, map[string]any{
			"market":         mkt.ID(),
			"contract_month": cm.String(),
			"sq_date":        date.String(),
		})

	case "list":
		year := time.Now().In(mkt.Location()).Year()
		if len(rest) > 0 {
			year, err = strconv.Atoi(rest[0])
			if err != nil {
				return fmt.Errorf("parse year %q: %w", rest[0], err)
			}
		}
		dates, err := mkt.SQDatesForYear(ctx, year)
		if err != nil {
			return err
		}
		list := make([]string, 0, len(dates))
		for _, d := range dates {
			list = append(list, d.String())
		}
		return emit(*format, map[string]any{
			"market":   mkt.ID(),
			"year":     year,
			"sq_dates": list,
			"count":    len(list),
		})

	case "is":
		date, err := dateArg(rest, 0, mkt)
		if err != nil {
			return err
		}
		ok, err := mkt.IsSQDate(ctx, date)
		if err != nil {
			return err
		}
		return emit(*format, map[string]any{
			"market":     mkt.ID(),
			"date":       date.String(),
			"is_sq_date": ok,
		})

	default:
		return fmt.Errorf("unknown sq subcommand %q (want get, list or is)", sub)
	}
}

// contractMonthArgs accepts either one token ("202603", "2026-03",
// "2026年3月限") or a year and month pair ("2026 3").
func contractMonthArgs(args []string) (domain.ContractMonth, error) {
	switch len(args) {
	case 1:
		return domain.ParseContractMonth(args[0])
	case 2:
		year, err := strconv.Atoi(args[0])
		if err != nil {
			return domain.ContractMonth{}, fmt.Errorf("parse year %q: %w", args[0], err)
		}
		month, err := strconv.Atoi(args[1])
		if err != nil {
			return domain.ContractMonth{}, fmt.Errorf("parse month %q: %w", args[1], err)
		}
		return domain.NewContractMonth(year, time.Month(month))
	default:
		return domain.ContractMonth{}, fmt.Errorf("usage: mks sq get [options] <contract-month>")
	}
}
