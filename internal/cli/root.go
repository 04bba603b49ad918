package cli

import (
	"log/slog"
	"os"

	"github.com/maintai/abtest/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	driver     string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "abtest",
	Short: "Deterministic A/B test assignment and analytics",
	Long: `abtest assigns an anonymous user to experiment variants, records
assignment and conversion events, and reports per-variant analytics.

Assignments are deterministic per identifier and persist until reset.
Experiments come from a YAML catalog; storage is SQLite by default.`,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvOrDefault("ABTEST_CONFIG", ""), "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides storage.path)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "storage driver: sqlite, badger, redis or memory (overrides storage.driver)")
}

// loadConfig resolves configuration and the process logger before any
// command runs. Flags win over the environment, which wins over the file.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Storage.Path = dbPath
	}
	if flags.Changed("driver") {
		c.Storage.Driver = driver
	}
	if flags.Changed("db") || flags.Changed("driver") {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	l, err := c.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(l)

	cfg = c
	logger = l
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
