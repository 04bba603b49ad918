package experiment

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable set of experiments known at startup.
type Catalog struct {
	experiments []Experiment
	index       map[string]int
}

// NewCatalog validates the given experiments and builds a catalog from them.
func NewCatalog(experiments ...Experiment) (*Catalog, error) {
	c := &Catalog{
		experiments: make([]Experiment, 0, len(experiments)),
		index:       make(map[string]int, len(experiments)),
	}

	for _, e := range experiments {
		if err := validate(e); err != nil {
			return nil, err
		}
		if _, dup := c.index[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate experiment %q", ErrInvalidCatalog, e.ID)
		}

		// Variants and configs are copied so callers can't mutate the catalog.
		cp := e
		cp.Variants = make([]Variant, len(e.Variants))
		for i, v := range e.Variants {
			v.Config = cloneConfig(v.Config)
			cp.Variants[i] = v
		}

		c.index[e.ID] = len(c.experiments)
		c.experiments = append(c.experiments, cp)
	}

	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on error. Meant for tests
// and static definitions.
func MustNewCatalog(experiments ...Experiment) *Catalog {
	c, err := NewCatalog(experiments...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks up an experiment by id.
func (c *Catalog) Get(id string) (Experiment, bool) {
	i, ok := c.index[id]
	if !ok {
		return Experiment{}, false
	}
	return c.experiments[i], true
}

// All returns the experiments in declaration order.
func (c *Catalog) All() []Experiment {
	out := make([]Experiment, len(c.experiments))
	copy(out, c.experiments)
	return out
}

// Len returns the number of experiments.
func (c *Catalog) Len() int {
	return len(c.experiments)
}

func validate(e Experiment) error {
	if e.ID == "" {
		return fmt.Errorf("%w: experiment id is required", ErrInvalidCatalog)
	}
	if !e.StartDate.IsZero() && !e.EndDate.IsZero() && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: experiment %q ends before it starts", ErrInvalidCatalog, e.ID)
	}

	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("%w: experiment %q has a variant without id", ErrInvalidCatalog, e.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: experiment %q has duplicate variant %q", ErrInvalidCatalog, e.ID, v.ID)
		}
		seen[v.ID] = true

		if v.Weight < 0 || math.IsNaN(v.Weight) || math.IsInf(v.Weight, 0) {
			return fmt.Errorf("%w: variant %q of %q has invalid weight %v", ErrInvalidCatalog, v.ID, e.ID, v.Weight)
		}
	}
	return nil
}

func cloneConfig(c Config) Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// File layout of a YAML catalog.
type catalogFile struct {
	Experiments []experimentFile `yaml:"experiments"`
}

type experimentFile struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Active      bool          `yaml:"active"`
	StartDate   string        `yaml:"start_date"`
	EndDate     string        `yaml:"end_date"`
	Variants    []variantFile `yaml:"variants"`
}

type variantFile struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Weight float64        `yaml:"weight"`
	Config map[string]any `yaml:"config"`
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	experiments := make([]Experiment, 0, len(f.Experiments))
	for _, ef := range f.Experiments {
		start, err := parseDate(ef.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: experiment %q start_date: %v", ErrInvalidCatalog, ef.ID, err)
		}
		end, err := parseDate(ef.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: experiment %q end_date: %v", ErrInvalidCatalog, ef.ID, err)
		}

		e := Experiment{
			ID:          ef.ID,
			Name:        ef.Name,
			Description: ef.Description,
			Active:      ef.Active,
			StartDate:   start,
			EndDate:     end,
			Variants:    make([]Variant, len(ef.Variants)),
		}
		for i, vf := range ef.Variants {
			e.Variants[i] = Variant{
				ID:     vf.ID,
				Name:   vf.Name,
				Weight: vf.Weight,
				Config: Config(vf.Config),
			}
		}
		experiments = append(experiments, e)
	}

	return NewCatalog(experiments...)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Load returns the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Default returns the built-in dashboard experiments.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Dates are either a bare day (UTC midnight) or RFC3339.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), nil
}
