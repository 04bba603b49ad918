package cli

import (
	"context"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/maintai/abtest/internal/bucket"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// simulationEpoch is the millisecond suffix of synthetic identifiers, so
// runs are reproducible.
const simulationEpoch = 1700000000000

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	var (
		population int
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "simulate <experiment>",
		Short: "Preview how a population of users would be bucketed",
		Long: `Bucket a synthetic population against an experiment's variants and
compare the observed split with the configured weights. Nothing is stored.

Example:
  abtest simulate dashboardButtonColor --population 100000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if population <= 0 {
				return fmt.Errorf("population must be > 0")
			}

			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			e, err := lookupExperiment(catalog, args[0])
			if err != nil {
				return err
			}
			if len(e.Variants) == 0 {
				return fmt.Errorf("experiment '%s' has no variants", e.ID)
			}

			counts, err := simulate(cmd.Context(), e, population, workers)
			if err != nil {
				return err
			}

			total := e.TotalWeight()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VARIANT\tWEIGHT\tEXPECTED\tOBSERVED\tSHARE")
			for _, v := range e.Variants {
				expected := 0.0
				if total > 0 {
					expected = v.Weight / total
				}
				fmt.Fprintf(w, "%s\t%g\t%s\t%s\t%s\n",
					v.ID,
					v.Weight,
					formatPercent(expected),
					formatNumber(counts[v.ID]),
					formatPercent(float64(counts[v.ID])/float64(population)),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&population, "population", "n", 10000, "number of synthetic users")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "parallel workers")
	return cmd
}

// simulate buckets population synthetic identifiers across workers and
// returns the count per variant id.
func simulate(ctx context.Context, e experiment.Experiment, population, workers int) (map[string]int, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > population {
		workers = population
	}

	partials := make([]map[string]int, workers)
	g, gCtx := errgroup.WithContext(ctx)

	chunk := (population + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, population)

		g.Go(func() error {
			counts := make(map[string]int, len(e.Variants))
			for i := start; i < end; i++ {
				if i%4096 == 0 {
					if err := gCtx.Err(); err != nil {
						return err
					}
				}
				v, ok := bucket.Assign(fmt.Sprintf("user_%d_%d", i, simulationEpoch), e)
				if ok {
					counts[v.ID]++
				}
			}
			partials[w] = counts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation cancelled: %w", err)
	}

	out := make(map[string]int, len(e.Variants))
	for _, p := range partials {
		for id, n := range p {
			out[id] += n
		}
	}
	return out, nil
}
