// Package bucket maps identifiers onto experiment variants.
//
// The hash is the 31-multiplier polynomial over UTF-16 code units used by
// browser clients, wrapped to a signed 32-bit integer. Keeping it bit-exact
// means a server and a browser bucket the same identifier the same way.
package bucket

import (
	"unicode/utf16"

	"github.com/maintai/abtest/internal/experiment"
)

// ControlVariant is the variant id preferred when selection falls through.
const ControlVariant = "control"

// Hash returns the absolute value of the 32-bit rolling hash of s.
// The result is an int64 so that the absolute value of MinInt32 fits.
func Hash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h<<5 - h + int32(c)
	}
	if h < 0 {
		return -int64(h)
	}
	return int64(h)
}

// Key is the string hashed for an identifier/experiment pair.
func Key(identifier, experimentID string) string {
	return identifier + experimentID
}

// Threshold maps a hash into the experiment's weight space.
func Threshold(hash int64, totalWeight float64) float64 {
	return float64(hash%100) / 100 * totalWeight
}

// Select picks the variant for hash. It returns false only when there are no
// variants to choose from.
func Select(variants []experiment.Variant, hash int64) (experiment.Variant, bool) {
	if len(variants) == 0 {
		return experiment.Variant{}, false
	}

	total := 0.0
	for _, v := range variants {
		total += v.Weight
	}
	return pick(variants, Threshold(hash, total)), true
}

// Assign is Select applied to an identifier and experiment.
func Assign(identifier string, e experiment.Experiment) (experiment.Variant, bool) {
	return Select(e.Variants, Hash(Key(identifier, e.ID)))
}

func pick(variants []experiment.Variant, threshold float64) experiment.Variant {
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Weight
		if threshold <= cumulative {
			return v
		}
	}

	// Unreachable with threshold <= total, kept for rounding at the boundary.
	for _, v := range variants {
		if v.ID == ControlVariant {
			return v
		}
	}
	return variants[0]
}
