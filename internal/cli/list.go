package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/maintai/abtest/internal/experiment"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "experiments",
	Aliases: []string{"list", "ls"},
	Short:   "List the experiments in the catalog",
	Long:    `List every experiment in the catalog with its state, window and variant weights.`,
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if catalog.Len() == 0 {
		fmt.Fprintln(out, "No experiments in the catalog.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tWINDOW\tVARIANTS")

	for _, e := range catalog.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Name,
			strings.ToUpper(string(e.State(now))),
			formatWindow(e),
			formatVariants(e.Variants),
		)
	}

	return w.Flush()
}

func formatWindow(e experiment.Experiment) string {
	date := func(t time.Time) string {
		if t.IsZero() {
			return "…"
		}
		return t.Format("2006-01-02")
	}
	if e.StartDate.IsZero() && e.EndDate.IsZero() {
		return "always"
	}
	return date(e.StartDate) + " → " + date(e.EndDate)
}

func formatVariants(variants []experiment.Variant) string {
	if len(variants) == 0 {
		return "-"
	}
	parts := make([]string, len(variants))
	for i, v := range variants {
		parts[i] = fmt.Sprintf("%s:%g", v.ID, v.Weight)
	}
	return strings.Join(parts, " ")
}
