// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"math"

	"github.com/crucible-ai/crucible/candidate"
)

// State is the shared bookkeeping of a single search invocation: the best
// candidate seen so far, iteration count, remaining compute budget, and
// convergence flag.
//
// State is a pure value. Every transition returns a new State and leaves the
// receiver untouched, so algorithms thread it explicitly through their loop
// and tests can exercise transitions without a running search.
//
// Thread Safety: Not safe for concurrent mutation. A State is owned by the
// single search call that created it.
type State struct {
	// BestNode is the highest-scoring candidate seen so far, nil until the
	// first UpdateBest.
	BestNode *candidate.Candidate

	// BestScore is the score of BestNode, -Inf until the first UpdateBest.
	// It is monotonically non-decreasing for the life of the State.
	BestScore float64

	// Iterations counts completed search iterations.
	Iterations int

	// BudgetRemaining is the compute budget left, in algorithm-defined
	// units (generations, simulations).
	BudgetRemaining int

	// Converged is set once the best score stops improving.
	Converged bool

	// Metadata carries open key/value context for the caller.
	Metadata map[string]any

	// history records BestScore at the end of each completed iteration,
	// consulted by CheckConvergence.
	history []float64
}

// NewState creates the state for one search invocation.
func NewState(budget int) State {
	return State{
		BestScore:       math.Inf(-1),
		BudgetRemaining: budget,
	}
}

// UpdateBest replaces the best candidate only when score is strictly
// greater than the current best. Ties keep the earlier-found candidate so
// that reruns with identical inputs pick identical winners.
func (s State) UpdateBest(cand *candidate.Candidate, score float64) State {
	if score > s.BestScore {
		s.BestNode = cand
		s.BestScore = score
	}
	return s
}

// DecrementBudget consumes n units of budget. The result may go negative;
// ShouldStop treats anything at or below zero as exhausted.
func (s State) DecrementBudget(n int) State {
	s.BudgetRemaining -= n
	return s
}

// Advance completes one iteration: the current best score is recorded for
// convergence tracking and the iteration counter moves forward.
func (s State) Advance() State {
	history := make([]float64, len(s.history), len(s.history)+1)
	copy(history, s.history)
	s.history = append(history, s.BestScore)
	s.Iterations++
	return s
}

// CheckConvergence sets Converged when the best score has not improved by
// more than epsilon over the last window completed iterations. With fewer
// than window+1 recorded iterations there is not enough signal and the
// state is returned unchanged.
func (s State) CheckConvergence(window int, epsilon float64) State {
	if window <= 0 || len(s.history) <= window {
		return s
	}
	latest := s.history[len(s.history)-1]
	earlier := s.history[len(s.history)-1-window]
	if latest-earlier <= epsilon {
		s.Converged = true
	}
	return s
}

// ShouldStop reports whether the search must terminate: budget exhausted or
// convergence reached. Algorithm-specific caps (max depth, simulation count)
// are enforced by the algorithms themselves.
func (s State) ShouldStop() bool {
	return s.BudgetRemaining <= 0 || s.Converged
}

// BudgetExhausted reports whether the budget specifically ran out. Used to
// distinguish "stopped because done" from "stopped because out of budget"
// in the returned Result.
func (s State) BudgetExhausted() bool {
	return s.BudgetRemaining <= 0
}
