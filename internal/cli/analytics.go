package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/spf13/cobra"
)

// recentConversions is how many conversions are listed per variant.
const recentConversions = 5

var analyticsFormat string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize assignments and conversions per experiment",
	Long: `Summarize the event log: assignments, conversions and conversion rate
per variant, plus the most recent conversions.

Examples:
  abtest analytics
  abtest analytics --format json`,
	Args: cobra.NoArgs,
	RunE: runAnalytics,
}

func init() {
	analyticsCmd.Flags().StringVarP(&analyticsFormat, "format", "f", "table", "output format (table or json)")
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	if analyticsFormat != "table" && analyticsFormat != "json" {
		return fmt.Errorf("invalid format: must be 'table' or 'json'")
	}

	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		a, err := m.Analytics(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load analytics: %w", err)
		}

		out := cmd.OutOrStdout()
		if analyticsFormat == "json" {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(a)
		}
		return printAnalytics(out, m, a)
	})
}

func printAnalytics(out io.Writer, m *abtest.Manager, a abtest.Analytics) error {
	if len(a) == 0 {
		fmt.Fprintln(out, "No events recorded yet.")
		return nil
	}

	// Catalog order first, then experiments only the log knows about.
	var ids []string
	seen := make(map[string]bool)
	for _, e := range m.Catalog().All() {
		if _, ok := a[e.ID]; ok {
			ids = append(ids, e.ID)
			seen[e.ID] = true
		}
	}
	var orphans []string
	for id := range a {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	ids = append(ids, orphans...)

	for i, id := range ids {
		if i > 0 {
			fmt.Fprintln(out)
		}
		summary := a[id]

		title := id
		if e, ok := m.Catalog().Get(id); ok && e.Name != "" {
			title = fmt.Sprintf("%s (%s)", e.Name, id)
		}
		fmt.Fprintln(out, title)
		fmt.Fprintln(out, strings.Repeat("─", 60))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VARIANT\tASSIGNMENTS\tCONVERSIONS\tRATE")
		for _, v := range summary.Variants() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				v,
				formatNumber(summary.Assignments[v]),
				formatNumber(summary.ConversionCount(v)),
				formatPercent(summary.ConversionRate(v)),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		for _, v := range summary.Variants() {
			recent := summary.RecentConversions(v, recentConversions)
			if len(recent) == 0 {
				continue
			}
			fmt.Fprintf(out, "Recent conversions (%s):\n", v)
			for _, c := range recent {
				fmt.Fprintf(out, "  %s  %s  %g\n", c.Timestamp.Format("2006-01-02 15:04:05"), c.Type, c.Value)
			}
		}
	}
	return nil
}
