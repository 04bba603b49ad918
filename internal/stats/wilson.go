// Package stats compares experiment variants: conversion rates, Wilson
// confidence intervals and a two-proportion z-test against control.
package stats

import "math"

// DefaultConfidence is the level used for intervals and the confident flag.
const DefaultConfidence = 0.95

// WilsonInterval returns the Wilson score interval for successes out of
// trials, clamped to [0, 1]. It behaves better than the normal
// approximation for the small samples a young experiment has.
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}

	z := ZScore(confidence)
	n := float64(trials)
	p := float64(successes) / n
	// Conversions without a matching assignment can push p over 1.
	p = math.Min(p, 1)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := z / denominator * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return math.Max(center-spread, 0), math.Min(center+spread, 1)
}

// ZScore is the two-sided critical value for a confidence level in (0, 1),
// e.g. 1.96 for 0.95.
func ZScore(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		return math.Inf(1)
	}
	return math.Sqrt2 * math.Erfinv(confidence)
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
