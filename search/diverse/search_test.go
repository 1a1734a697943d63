// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diverse

import (
	"context"
	"errors"
	"testing"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
	"github.com/crucible-ai/crucible/verify"
)

// scriptGen replays outputs and records the temperatures it was called with.
type scriptGen struct {
	outputs      []string
	calls        int
	temperatures []float64
}

func (g *scriptGen) Generate(_ context.Context, _ string, opts search.SamplingOptions) (*candidate.Candidate, error) {
	if len(g.outputs) == 0 {
		return nil, errors.New("no outputs scripted")
	}
	g.temperatures = append(g.temperatures, opts.Temperature)
	out := g.outputs[g.calls%len(g.outputs)]
	g.calls++
	return candidate.New(out), nil
}

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
	base := DefaultConfig()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero candidates", func(c *Config) { c.NumCandidates = 0 }},
		{"zero k", func(c *Config) { c.K = 0 }},
		{"lambda below range", func(c *Config) { c.Lambda = -0.1 }},
		{"lambda above range", func(c *Config) { c.Lambda = 1.1 }},
		{"threshold above range", func(c *Config) { c.DiversityThreshold = 1.5 }},
		{"weights not summing to one", func(c *Config) { c.JaccardWeight = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base
			tt.mutate(&config)
			if err := config.Validate(); !errors.Is(err, search.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestRunSelectsDiverseHighQualitySubset(t *testing.T) {
	gen := &scriptGen{outputs: []string{
		"the answer is 42",
		"the answer is 42 indeed",
		"it might be 54",
		"absolutely no idea",
	}}
	scorer := contentScorer(t, map[string]float64{
		"the answer is 42":        0.9,
		"the answer is 42 indeed": 0.85,
		"it might be 54":          0.4,
		"absolutely no idea":      0.1,
	})

	s, err := New(gen, scorer, Config{
		NumCandidates:      4,
		K:                  2,
		Lambda:             0.5,
		DiversityThreshold: 0.6,
		JaccardWeight:      1,
		EditWeight:         0,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := s.Run(context.Background(), "task", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Best.Content != "the answer is 42" {
		t.Errorf("best = %q, want the most relevant selected member", result.Best.Content)
	}
	if result.BestScore != 0.9 {
		t.Errorf("best score = %v, want 0.9", result.BestScore)
	}
	if len(result.Trace) != 2 {
		t.Fatalf("selected %d, want 2", len(result.Trace))
	}
	// The near-duplicate "indeed" variant must not ride along with the
	// original despite its high relevance.
	for _, c := range result.Trace {
		if c.Content == "the answer is 42 indeed" {
			t.Errorf("near-duplicate selected alongside the original: %v", result.Trace)
		}
	}
	// The single sampling pass is the whole plan; it is never budget-cut.
	if result.BudgetExhausted {
		t.Error("BudgetExhausted = true on a completed sampling pass")
	}
}

func TestRunCyclesTemperatures(t *testing.T) {
	gen := &scriptGen{outputs: []string{"a", "b"}}
	scorer := contentScorer(t, map[string]float64{"a": 0.5, "b": 0.6})

	config := DefaultConfig()
	config.NumCandidates = 5
	config.Temperatures = []float64{0.2, 0.9}

	s, err := New(gen, scorer, config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Run(context.Background(), "task", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []float64{0.2, 0.9, 0.2, 0.9, 0.2}
	if len(gen.temperatures) != len(want) {
		t.Fatalf("generator calls = %d, want %d", len(gen.temperatures), len(want))
	}
	for i, w := range want {
		if gen.temperatures[i] != w {
			t.Errorf("call %d temperature = %v, want %v", i, gen.temperatures[i], w)
		}
	}
}

func TestRunGeneratorProducesNothing(t *testing.T) {
	gen := &scriptGen{} // always errors
	s, err := New(gen, contentScorer(t, nil), DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = s.Run(context.Background(), "task", nil)
	if !errors.Is(err, search.ErrEmptyCandidatePool) {
		t.Errorf("Run() error = %v, want ErrEmptyCandidatePool", err)
	}
}

func TestRunNothingScorable(t *testing.T) {
	gen := &scriptGen{outputs: []string{"x"}}
	refusing := verify.NewVerifyFunc("refuses", func(context.Context, *candidate.Candidate, verify.Context) (*candidate.VerificationResult, error) {
		return nil, errors.New("no")
	})
	runner, err := verify.NewRunner([]verify.WeightedVerifier{{Verifier: refusing, Weight: 1}})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	s, err := New(gen, runner, DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Run(context.Background(), "task", nil); err == nil {
		t.Error("Run() succeeded with nothing scorable, want error")
	}
}

func TestRunDeterminism(t *testing.T) {
	run := func() string {
		gen := &scriptGen{outputs: []string{"aa bb", "cc dd", "ee ff", "aa cc"}}
		scorer := contentScorer(t, map[string]float64{
			"aa bb": 0.7, "cc dd": 0.7, "ee ff": 0.3, "aa cc": 0.5,
		})
		config := DefaultConfig()
		config.NumCandidates = 4
		config.K = 3
		s, err := New(gen, scorer, config)
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
