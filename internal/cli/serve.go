package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/maintai/abtest/internal/server"
	"github.com/maintai/abtest/internal/store"
	"github.com/spf13/cobra"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the abtest HTTP server.

The server provides:
  - Variant, config and conversion endpoints for browsers and services
  - Token-protected analytics, results, reset and dashboard
  - Health check and Prometheus metrics

Example:
  abtest serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(ctx, func(s store.Store) error {
		srv, err := server.New(catalog, s, server.Options{
			Addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Mode:        cfg.Server.Mode,
			Token:       cfg.Server.Token,
			TokenFile:   cfg.TokenFilePath(),
			MaxVisitors: cfg.Server.MaxVisitors,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "abtest running on http://localhost:%d\n", cfg.Server.Port)
		fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", cfg.Server.Port, srv.Token())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		return srv.Run(ctx)
	})
}
