package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/stats"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment>",
	Short: "Show detailed results for an experiment",
	Long:  `Show conversion rates, confidence intervals, conversion value totals and the significance of the leading variant.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		e, err := lookupExperiment(m.Catalog(), args[0])
		if err != nil {
			return err
		}

		a, err := m.Analytics(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load analytics: %w", err)
		}
		result := stats.Analyze(e, a[e.ID])

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "EXPERIMENT: %s\n", e.ID)
		if e.Name != "" {
			fmt.Fprintf(out, "NAME: %s\n", e.Name)
		}
		fmt.Fprintf(out, "STATE: %s\n", e.State(time.Now()))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "VARIANT           ASSIGNED  CONVERSIONS  RATE     95% CI            VALUE")
		fmt.Fprintln(out, strings.Repeat("─", 78))

		for _, v := range result.Variants {
			indicator := ""
			if v.ID == result.Leader && len(result.Variants) > 1 {
				indicator = " ← LEADING"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Assignments == 0 {
				ciStr = "N/A"
			}

			name := v.ID
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Fprintf(out, "%-16s  %-8d  %-11d  %-7s  %-16s  %s%s\n",
				name,
				v.Assignments,
				v.Conversions,
				formatPercent(v.Rate),
				ciStr,
				v.TotalValue.StringFixed(2),
				indicator,
			)
		}

		fmt.Fprintln(out)

		if len(result.Variants) > 1 {
			confPct := result.ConfidenceLevel * 100
			switch {
			case result.Confident:
				fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, result.Leader)
			case confPct >= 90:
				fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" beats %s (not yet significant)\n", confPct, result.Leader, result.Control)
			default:
				fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
			}
		}
		return nil
	})
}
