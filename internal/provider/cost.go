// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

// Cost rates in USD per 1000 output characters.
var costRates = map[string]float64{
	NameGoogle:    0.001,
	NameOpenAI:    0.01,
	NameAnthropic: 0.015,
}

// DefaultCostRate applies to providers without a listed rate.
const DefaultCostRate = 0.01

// CostRate returns the per-1000-unit rate for a provider.
func CostRate(name string) float64 {
	if r, ok := costRates[name]; ok {
		return r
	}
	return DefaultCostRate
}

// EstimateCost approximates the spend of a successful call from the length of
// its output. The estimate is for observability only and never affects routing.
func EstimateCost(name string, outputLength int) float64 {
	if outputLength <= 0 {
		return 0
	}
	return float64(outputLength) / 1000 * CostRate(name)
}
