package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with the access token of the running server.

Use this when you've scrolled past the startup message or need to
share the dashboard link.

Example:
  abtest token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	token := cfg.Server.Token
	if token == "" {
		data, err := os.ReadFile(cfg.TokenFilePath())
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("no server running. Start with: abtest serve")
			}
			return fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: abtest serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", cfg.Server.Port, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: Bookmark this URL or run 'abtest token' anytime.")
	return nil
}
