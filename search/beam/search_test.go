// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package beam

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
	"github.com/crucible-ai/crucible/verify"
)

// scriptGen replays a fixed output cycle, making searches deterministic.
type scriptGen struct {
	outputs []string
	calls   int
}

func (g *scriptGen) Generate(context.Context, string, search.SamplingOptions) (*candidate.Candidate, error) {
	if len(g.outputs) == 0 {
		return nil, errors.New("no outputs scripted")
	}
	out := g.outputs[g.calls%len(g.outputs)]
	g.calls++
	return candidate.New(out), nil
}

// contentScorer builds a real verification runner that scores candidates by
// a content-to-score table.
func contentScorer(t *testing.T, scores map[string]float64) *verify.Runner {
	t.Helper()
	v := verify.ScoreFunc("table", func(c *candidate.Candidate) float64 {
		return scores[c.Content]
	})
	runner, err := verify.NewRunner([]verify.WeightedVerifier{{Verifier: v, Weight: 1}})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return runner
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"zero beam width", Config{BeamWidth: 0, Depth: 1, BranchingFactor: 1}},
		{"zero depth", Config{BeamWidth: 1, Depth: 0, BranchingFactor: 1}},
		{"zero branching", Config{BeamWidth: 1, Depth: 1, BranchingFactor: 0}},
		{"negative window", Config{BeamWidth: 1, Depth: 1, BranchingFactor: 1, NoImprovementWindow: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); !errors.Is(err, search.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestRunPicksHighestScored(t *testing.T) {
	gen := &scriptGen{outputs: []string{"weak", "strong", "medium"}}
	scorer := contentScorer(t, map[string]float64{"weak": 0.2, "strong": 0.9, "medium": 0.5})

	s, err := New(gen, scorer, Config{BeamWidth: 3, Depth: 1, BranchingFactor: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Best.Content != "strong" {
		t.Errorf("best = %q, want strong", result.Best.Content)
	}
	if result.BestScore != 0.9 {
		t.Errorf("best score = %v, want 0.9", result.BestScore)
	}
	if len(result.Trace) == 0 || result.Trace[0].Content != "strong" {
		t.Errorf("trace head = %v, want the best candidate first", result.Trace)
	}
	// The run completed its planned depth; spending the budget on the plan
	// is not a cut-off.
	if result.BudgetExhausted {
		t.Error("BudgetExhausted = true on a fully-completed run")
	}
}

func TestRunCarriesForwardStrongParents(t *testing.T) {
	// Initial candidates outscore every continuation; the final beam must
	// keep the parents rather than replacing them wholesale.
	gen := &scriptGen{outputs: []string{"parent-a", "parent-b", "child", "child", "child", "child"}}
	scorer := contentScorer(t, map[string]float64{"parent-a": 0.9, "parent-b": 0.8, "child": 0.1})

	s, err := New(gen, scorer, Config{BeamWidth: 2, Depth: 1, BranchingFactor: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Best.Content != "parent-a" {
		t.Errorf("best = %q, want parent-a", result.Best.Content)
	}
	for _, c := range result.Trace {
		if c.Content == "child" {
			t.Errorf("weak child displaced a stronger parent in the beam: %v", contents(result.Trace))
		}
	}
}

func TestRunWidthOneIsGreedy(t *testing.T) {
	// Hand-rolled greedy reference over the same scripted outputs: keep
	// exactly the single best at each level.
	outputs := []string{"a", "b", "c", "d"}
	scores := map[string]float64{"a": 0.3, "b": 0.7, "c": 0.5, "d": 0.6}

	gen := &scriptGen{outputs: outputs}
	s, err := New(gen, contentScorer(t, scores), Config{BeamWidth: 1, Depth: 2, BranchingFactor: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Level 0 generates "a" (0.3). Level 1 expands to "b" (0.7), which
	// wins greedily. Level 2 expands to "c" (0.5), which loses to "b".
	if result.Best.Content != "b" {
		t.Errorf("greedy best = %q, want b", result.Best.Content)
	}
	if len(result.Trace) != 1 {
		t.Errorf("greedy beam size = %d, want exactly 1", len(result.Trace))
	}
}

func TestRunDeterministicTieBreak(t *testing.T) {
	// Two candidates with equal scores: the earlier-generated one wins.
	gen := &scriptGen{outputs: []string{"first", "second"}}
	scorer := contentScorer(t, map[string]float64{"first": 0.5, "second": 0.5})

	s, err := New(gen, scorer, Config{BeamWidth: 2, Depth: 1, BranchingFactor: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Best.Content != "first" {
		t.Errorf("tie broke toward %q, want first", result.Best.Content)
	}
}

func TestRunArithmeticScenario(t *testing.T) {
	// "What is 15*23?" with a generator that answers 345 (correct) 70% of
	// the time and 350 (wrong) 30%. The beam majority and top candidate
	// must be the correct answer.
	outputs := []string{"345", "345", "350", "345", "345", "350", "345", "345", "350", "345"}
	gen := &scriptGen{outputs: outputs}
	scorer := contentScorer(t, map[string]float64{"345": 1.0, "350": 0.0})

	s, err := New(gen, scorer, Config{BeamWidth: 3, Depth: 1, BranchingFactor: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "What is 15*23?", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Best.Content != "345" {
		t.Errorf("best = %q, want 345", result.Best.Content)
	}
	correct := 0
	for _, c := range result.Trace {
		if c.Content == "345" {
			correct++
		}
	}
	if correct <= len(result.Trace)/2 {
		t.Errorf("beam majority is not the correct answer: %v", contents(result.Trace))
	}
}

func TestRunTerminalStopsEarly(t *testing.T) {
	gen := &scriptGen{outputs: []string{"FINAL: 42", "FINAL: 41"}}
	scorer := contentScorer(t, map[string]float64{"FINAL: 42": 0.9, "FINAL: 41": 0.8})

	s, err := New(gen, scorer,
		Config{BeamWidth: 2, Depth: 5, BranchingFactor: 2},
		WithTerminal(func(c *candidate.Candidate) bool {
			return strings.HasPrefix(c.Content, "FINAL:")
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Best.Content != "FINAL: 42" {
		t.Errorf("best = %q, want FINAL: 42", result.Best.Content)
	}
	// Only the initial level generated; no expansions past the terminal beam.
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2 (no expansion of a terminal beam)", gen.calls)
	}
}

func TestRunEmptyBeamIsError(t *testing.T) {
	declining := verify.NewVerifyFunc("declines", func(_ context.Context, cand *candidate.Candidate, _ verify.Context) (*candidate.VerificationResult, error) {
		return nil, errors.New("unscorable")
	})
	runner, err := verify.NewRunner([]verify.WeightedVerifier{{Verifier: declining, Weight: 1}})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	gen := &scriptGen{outputs: []string{"x"}}
	s, err := New(gen, runner, Config{BeamWidth: 2, Depth: 1, BranchingFactor: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = s.Run(context.Background(), "task", nil)
	if err == nil {
		t.Fatal("Run() succeeded with nothing scorable, want error")
	}
}

func TestRunDeterminism(t *testing.T) {
	run := func() string {
		gen := &scriptGen{outputs: []string{"a", "b", "c", "d", "e", "f"}}
		scorer := contentScorer(t, map[string]float64{
			"a": 0.1, "b": 0.6, "c": 0.3, "d": 0.6, "e": 0.2, "f": 0.9,
		})
		s, err := New(gen, scorer, Config{BeamWidth: 2, Depth: 2, BranchingFactor: 2})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		result, err := s.Run(context.Background(), "task", nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return result.Best.Content
	}

	first := run()
	for i := 0; i < 3; i++ {
		if got := run(); got != first {
			t.Fatalf("rerun %d best = %q, first run best = %q", i, got, first)
		}
	}
}

func contents(cands []*candidate.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Content
	}
	return out
}
