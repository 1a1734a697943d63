// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import "fmt"

// Aggregation selects how surviving verifier scores are folded into one.
//
// Only WeightedAvg consults per-verifier weights; the other strategies
// ignore them. That asymmetry is deliberate and load-bearing: callers that
// weight verifiers and pick Max/Min/Sum/Product get the unweighted fold.
type Aggregation string

const (
	// AggregationWeightedAvg is Σ(score_i * weight_i) / Σ(weight_i).
	AggregationWeightedAvg Aggregation = "weighted_avg"

	// AggregationMax keeps the maximum surviving score.
	AggregationMax Aggregation = "max"

	// AggregationMin keeps the minimum surviving score.
	AggregationMin Aggregation = "min"

	// AggregationSum sums the surviving scores.
	AggregationSum Aggregation = "sum"

	// AggregationProduct multiplies the surviving scores.
	AggregationProduct Aggregation = "product"
)

// Valid reports whether the aggregation is one of the recognized values.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationWeightedAvg, AggregationMax, AggregationMin, AggregationSum, AggregationProduct:
		return true
	default:
		return false
	}
}

// String returns the wire name of the strategy.
func (a Aggregation) String() string {
	return string(a)
}

// ParseAggregation converts a string to an Aggregation, rejecting unknown
// values immediately rather than at first use.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown aggregation %q", ErrInvalidConfig, s)
	}
	return a, nil
}

// ErrorPolicy selects how the Runner reacts to a verifier failure.
type ErrorPolicy string

const (
	// PolicyContinue records the failure, drops that verifier's
	// contribution, and proceeds with the remaining results.
	PolicyContinue ErrorPolicy = "continue"

	// PolicyHalt aborts the whole verification on the first failure.
	PolicyHalt ErrorPolicy = "halt"
)

// Valid reports whether the policy is one of the recognized values.
func (p ErrorPolicy) Valid() bool {
	return p == PolicyContinue || p == PolicyHalt
}

// String returns the wire name of the policy.
func (p ErrorPolicy) String() string {
	return string(p)
}

// ParseErrorPolicy converts a string to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	p := ErrorPolicy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown error policy %q", ErrInvalidConfig, s)
	}
	return p, nil
}

// aggregate folds surviving scores per the strategy. scores and weights are
// parallel slices and must be non-empty; the caller guarantees that (a run
// with zero survivors fails with ErrAllVerifiersFailed before reaching here).
func aggregate(strategy Aggregation, scores, weights []float64) float64 {
	switch strategy {
	case AggregationMax:
		best := scores[0]
		for _, s := range scores[1:] {
			if s > best {
				best = s
			}
		}
		return best

	case AggregationMin:
		worst := scores[0]
		for _, s := range scores[1:] {
			if s < worst {
				worst = s
			}
		}
		return worst

	case AggregationSum:
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum

	case AggregationProduct:
		product := 1.0
		for _, s := range scores {
			product *= s
		}
		return product

	default: // AggregationWeightedAvg
		var sum, weightSum float64
		for i, s := range scores {
			sum += s * weights[i]
			weightSum += weights[i]
		}
		return sum / weightSum
	}
}
