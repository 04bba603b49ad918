package cli

import (
	"errors"
	"fmt"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all assignments and clear the event log",
	Long: `Remove every stored assignment and all recorded events. The identifier
is kept, so experiments bucket the same way on the next assignment.

Examples:
  abtest reset
  abtest reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if !resetYes {
		confirmed, err := confirmReset()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Reset cancelled.")
			return nil
		}
	}

	return withManager(cmd.Context(), func(m *abtest.Manager) error {
		if err := m.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
		fmt.Fprintln(out, "All A/B test assignments and events have been reset.")
		return nil
	})
}

func confirmReset() (bool, error) {
	prompt := promptui.Prompt{
		Label:     "Are you sure you want to reset all A/B test data",
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		// A "no" answer comes back as ErrAbort.
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
