package stats

import (
	"math"
	"sort"

	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/bucket"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/shopspring/decimal"
)

// Result is the comparison of all variants of one experiment.
type Result struct {
	ExperimentID    string          `json:"experiment_id"`
	Variants        []VariantResult `json:"variants"`
	Control         string          `json:"control"`
	Leader          string          `json:"leader"`
	ConfidenceLevel float64         `json:"confidence_level"`
	Confident       bool            `json:"confident"`
}

// VariantResult holds the numbers for a single variant.
type VariantResult struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Assignments int             `json:"assignments"`
	Conversions int             `json:"conversions"`
	Rate        float64         `json:"rate"`
	CILower     float64         `json:"ci_lower"`
	CIUpper     float64         `json:"ci_upper"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// AverageValue is the mean conversion value, or zero without conversions.
func (v VariantResult) AverageValue() decimal.Decimal {
	if v.Conversions == 0 {
		return decimal.Zero
	}
	return v.TotalValue.Div(decimal.NewFromInt(int64(v.Conversions)))
}

// SignificanceTest runs a two-proportion z-test and returns the one-sided
// confidence that A converts better than B. Without data on both sides it
// returns 0.5.
func SignificanceTest(aConv, aTrials, bConv, bTrials int) float64 {
	if aTrials <= 0 || bTrials <= 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aTrials)
	pB := float64(bConv) / float64(bTrials)
	pooled := float64(aConv+bConv) / float64(aTrials+bTrials)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aTrials) + 1/float64(bTrials)))
	if se == 0 || math.IsNaN(se) {
		switch {
		case pA > pB:
			return 1
		case pA < pB:
			return 0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

// Analyze compares the variants of e using summary. summary may be nil for
// an experiment without events. Variants found in the events but not in the
// catalog are appended after the catalog ones.
func Analyze(e experiment.Experiment, summary *abtest.Summary) *Result {
	if summary == nil {
		summary = &abtest.Summary{}
	}

	ids := make([]string, 0, len(e.Variants))
	names := make(map[string]string, len(e.Variants))
	for _, v := range e.Variants {
		ids = append(ids, v.ID)
		names[v.ID] = v.Name
	}
	var extra []string
	for _, id := range summary.Variants() {
		if _, ok := names[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	ids = append(ids, extra...)

	res := &Result{ExperimentID: e.ID, Variants: make([]VariantResult, 0, len(ids))}
	for _, id := range ids {
		res.Variants = append(res.Variants, variantResult(id, names[id], summary))
	}
	if len(res.Variants) == 0 {
		return res
	}

	control := controlIndex(res.Variants)
	leader := leaderIndex(res.Variants, control)
	res.Control = res.Variants[control].ID
	res.Leader = res.Variants[leader].ID

	if len(res.Variants) >= 2 {
		if leader == control {
			// Control leads: measure it against the best challenger.
			res.ConfidenceLevel = compare(res.Variants[control], res.Variants[bestChallenger(res.Variants, control)])
		} else {
			res.ConfidenceLevel = compare(res.Variants[leader], res.Variants[control])
		}
	}
	res.Confident = res.ConfidenceLevel >= DefaultConfidence
	return res
}

func variantResult(id, name string, summary *abtest.Summary) VariantResult {
	conversions := summary.Conversions[id]
	total := decimal.Zero
	for _, c := range conversions {
		total = total.Add(decimal.NewFromFloat(c.Value))
	}

	r := VariantResult{
		ID:          id,
		Name:        name,
		Assignments: summary.Assignments[id],
		Conversions: len(conversions),
		Rate:        summary.ConversionRate(id),
		TotalValue:  total,
	}
	r.CILower, r.CIUpper = WilsonInterval(r.Conversions, r.Assignments, DefaultConfidence)
	return r
}

func compare(a, b VariantResult) float64 {
	return SignificanceTest(a.Conversions, a.Assignments, b.Conversions, b.Assignments)
}

func controlIndex(variants []VariantResult) int {
	for i, v := range variants {
		if v.ID == bucket.ControlVariant {
			return i
		}
	}
	return 0
}

// leaderIndex returns the highest-rate variant; control wins ties.
func leaderIndex(variants []VariantResult, control int) int {
	leader := control
	for i, v := range variants {
		if v.Rate > variants[leader].Rate {
			leader = i
		}
	}
	return leader
}

func bestChallenger(variants []VariantResult, control int) int {
	best := -1
	for i, v := range variants {
		if i == control {
			continue
		}
		if best < 0 || v.Rate > variants[best].Rate {
			best = i
		}
	}
	return best
}
