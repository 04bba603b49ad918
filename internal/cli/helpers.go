package cli

import (
	"context"
	"fmt"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/maintai/abtest/internal/store"
)

// withStore opens the configured backend, executes fn, and handles cleanup.
func withStore(ctx context.Context, fn func(store.Store) error) error {
	s, err := store.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withManager is withStore plus the catalog and a manager over them.
func withManager(ctx context.Context, fn func(*abtest.Manager) error) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	return withStore(ctx, func(s store.Store) error {
		return fn(abtest.New(catalog, s, abtest.WithLogger(logger)))
	})
}

func loadCatalog() (*experiment.Catalog, error) {
	c, err := experiment.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return c, nil
}

func lookupExperiment(c *experiment.Catalog, id string) (experiment.Experiment, error) {
	e, ok := c.Get(id)
	if !ok {
		return experiment.Experiment{}, fmt.Errorf("experiment '%s' not found", id)
	}
	return e, nil
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
