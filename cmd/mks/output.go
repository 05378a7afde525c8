package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// emit writes a result map to stdout. JSON is the default; text renders a
// flat "key: value" listing for humans.
func emit(format string, result map[string]any) error {
	switch format {
	case "", "json":
		enc, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(enc))
		return nil
	case "text":
		printText(result, "")
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want json or text)", format)
	}
}

// printText renders maps with sorted keys so output is stable run to run.
func printText(m map[string]any, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			fmt.Fprintf(os.Stdout, "%s%s: %s\n", indent, k, yesNo(v))
		case []string:
			fmt.Fprintf(os.Stdout, "%s%s:\n", indent, k)
			for _, item := range v {
				fmt.Fprintf(os.Stdout, "%s  - %s\n", indent, item)
			}
		case []any:
			fmt.Fprintf(os.Stdout, "%s%s:\n", indent, k)
			for _, item := range v {
				printTextItem(item, indent+"  ")
			}
		case []map[string]any:
			fmt.Fprintf(os.Stdout, "%s%s:\n", indent, k)
			for _, item := range v {
				printText(item, indent+"  ")
				fmt.Fprintln(os.Stdout)
			}
		default:
			fmt.Fprintf(os.Stdout, "%s%s: %v\n", indent, k, v)
		}
	}
}

func printTextItem(item any, indent string) {
	switch v := item.(type) {
	case map[string]any:
		printText(v, indent)
		fmt.Fprintln(os.Stdout)
	default:
		fmt.Fprintf(os.Stdout, "%s- %v\n", indent, v)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
