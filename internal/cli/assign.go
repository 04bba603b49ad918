package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/spf13/cobra"
)

// defaultConversionType mirrors the button conversions the engine was built
// around.
const defaultConversionType = "button_click"

func init() {
	rootCmd.AddCommand(assignCmd, configCmd, whoamiCmd, newConvertCmd())
}

var assignCmd = &cobra.Command{
	Use:   "assign <experiment>",
	Short: "Show (and on first use, assign) the variant for an experiment",
	Long: `Print the variant of the local user for an experiment.

The first call computes and persists the assignment and records an
assignment event; later calls return the stored variant.

Example:
  abtest assign dashboardButtonColor`,
	Args: cobra.ExactArgs(1),
	RunE: runAssign,
}

func runAssign(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		variant, ok, err := m.AssignVariant(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to assign variant: %w", err)
		}

		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintf(out, "No variant for '%s' (unknown, inactive, or outside its date range).\n", id)
			return nil
		}
		fmt.Fprintln(out, variant)
		return nil
	})
}

var configCmd = &cobra.Command{
	Use:   "config <experiment>",
	Short: "Print the presentation config of the assigned variant",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		variantConfig, ok, err := m.VariantConfig(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to get variant config: %w", err)
		}

		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintf(out, "No config for '%s'.\n", id)
			return nil
		}

		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(variantConfig)
	})
}

func newConvertCmd() *cobra.Command {
	var value float64

	cmd := &cobra.Command{
		Use:   "convert <experiment> [type]",
		Short: "Record a conversion for the assigned variant",
		Long: `Record a conversion against the local user's variant.

The type defaults to button_click and the value to 1. A user without a
variant (unknown, inactive or out-of-range experiment) records nothing.

Examples:
  abtest convert dashboardButtonColor
  abtest convert dashboardLayout purchase --value 49.90`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			conversionType := defaultConversionType
			if len(args) == 2 {
				conversionType = args[1]
			}

			return withManager(cmd.Context(), func(m *abtest.Manager) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				variant, ok, err := m.AssignVariant(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to resolve variant: %w", err)
				}
				if !ok {
					fmt.Fprintf(out, "No variant for '%s'; conversion ignored.\n", id)
					return nil
				}

				if err := m.TrackConversion(ctx, id, conversionType, value); err != nil {
					return fmt.Errorf("failed to record conversion: %w", err)
				}
				fmt.Fprintf(out, "Recorded %s (%g) for %s/%s\n", conversionType, value, id, variant)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&value, "value", abtest.DefaultConversionValue, "conversion value")
	return cmd
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the local identifier and current assignments",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		ctx := cmd.Context()

		id, err := m.Identifier(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve identifier: %w", err)
		}
		assignments, err := m.Assignments(ctx)
		if err != nil {
			return fmt.Errorf("failed to load assignments: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "IDENTIFIER: %s\n\n", id)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EXPERIMENT\tVARIANT")
		for _, e := range m.Catalog().All() {
			label := "Not Assigned"
			if variantID, ok := assignments[e.ID]; ok && variantID != "" {
				label = variantID
				if v, found := e.Variant(variantID); found && v.Name != "" {
					label = v.Name
				}
			}
			fmt.Fprintf(w, "%s\t%s\n", e.ID, label)
		}
		return w.Flush()
	})
}
