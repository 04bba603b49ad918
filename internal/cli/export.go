package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat     string
	exportExperiment string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export raw event data",
	Long: `Export the raw event log in CSV or JSON format.

Examples:
  abtest export --format csv > events.csv
  abtest export --format json --experiment dashboardLayout > layout.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVarP(&exportExperiment, "experiment", "e", "", "only export events of this experiment")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		events, err := m.Events(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		if exportExperiment != "" {
			filtered := events[:0]
			for _, e := range events {
				if e.ExperimentID == exportExperiment {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), events)
	})
}

func exportCSV(out io.Writer, events []store.Event) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"timestamp", "type", "experiment", "variant", "conversion_type", "value", "identifier"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		value := ""
		if e.Type == store.EventConversion {
			value = strconv.FormatFloat(e.Value, 'f', -1, 64)
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			e.ExperimentID,
			e.VariantID,
			e.ConversionType,
			value,
			e.Identifier,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Events []store.Event `json:"events"`
}

func exportJSON(out io.Writer, events []store.Event) error {
	if events == nil {
		events = []store.Event{}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Events: events})
}
