// cmd/pricematch/diagnose.go
package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/diagnostics"
)

func newDiagnoseCmd() *cobra.Command {
	var samples int

	cmd := &cobra.Command{
		Use:   "diagnose [host]",
		Short: "Check DNS, TCP and HTTPS reachability of a host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			if samples > 0 {
				cfg.Diagnostics.Samples = samples
			}

			report, err := diagnostics.New(cfg.Diagnostics).Run(cmd.Context(), host)
			if report == nil {
				return err
			}

			rows := [][]string{{"DNS", checkResult(report.DNS.Error, fmt.Sprint(report.DNS.Duration))}}
			for _, t := range report.TCP {
				result := fmt.Sprintf("%d/%d ok, min %s avg %s max %s", t.Succeeded, t.Attempts, t.Min, t.Avg, t.Max)
				if t.Succeeded == 0 {
					result = checkResult(t.LastError, result)
				}
				rows = append(rows, []string{fmt.Sprintf("TCP %d", t.Port), result})
			}
			if report.HTTP.URL != "" {
				result := fmt.Sprintf("%d in %s", report.HTTP.StatusCode, report.HTTP.Duration)
				rows = append(rows, []string{"GET " + report.HTTP.URL, checkResult(report.HTTP.Error, result)})
			}

			pterm.DefaultSection.Println(report.Host)
			printTable([]string{"Check", "Result"}, rows)
			if report.Reachable() {
				pterm.Success.Printfln("%s is reachable (log: %s)", report.Host, report.LogFile)
			} else {
				pterm.Error.Printfln("%s is not reachable (log: %s)", report.Host, report.LogFile)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "TCP connects per port (default: diagnostics.samples)")
	return cmd
}

// checkResult shows the failure when there is one.
func checkResult(errText, ok string) string {
	if errText != "" {
		return "FAILED: " + errText
	}
	return ok
}
