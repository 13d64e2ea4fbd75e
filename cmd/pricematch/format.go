// cmd/pricematch/format.go
package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
)

func printTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	data := pterm.TableData{headers}
	data = append(data, rows...)

	if err := pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(data).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func formatPrice(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
