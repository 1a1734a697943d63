// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diverse implements diverse decoding: sample many candidates at
// varied temperatures, score them all, and return a high-quality subset
// that is also mutually dissimilar, selected by Maximal Marginal Relevance.
package diverse

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
	"github.com/crucible-ai/crucible/verify"
)

var tracer = otel.Tracer("crucible.search.diverse")

// Config holds diverse decoding parameters.
type Config struct {
	// NumCandidates is the sample pool size. Must be >= 1.
	NumCandidates int

	// K is the requested output size. Must be >= 1. The selection may
	// come up short when the pool holds nothing sufficiently dissimilar.
	K int

	// Lambda is the MMR relevance/diversity trade-off in [0, 1]:
	// 1 is pure relevance, 0 is pure diversity.
	Lambda float64

	// DiversityThreshold is the maximum pairwise similarity admitted
	// between selected candidates, in [0, 1].
	DiversityThreshold float64

	// JaccardWeight and EditWeight blend the two similarity metrics and
	// must sum to 1.
	JaccardWeight float64
	EditWeight    float64

	// Temperatures are cycled across generation calls to vary sampling.
	// Empty means DefaultTemperatures.
	Temperatures []float64
}

// DefaultTemperatures spreads samples from near-greedy to exploratory.
var DefaultTemperatures = []float64{0.3, 0.7, 1.0}

// DefaultConfig returns parameters suitable for answer sampling.
func DefaultConfig() Config {
	return Config{
		NumCandidates:      10,
		K:                  3,
		Lambda:             0.7,
		DiversityThreshold: 0.8,
		JaccardWeight:      0.5,
		EditWeight:         0.5,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.NumCandidates < 1 {
		return fmt.Errorf("%w: num candidates %d, must be >= 1", search.ErrInvalidConfig, c.NumCandidates)
	}
	if c.K < 1 {
		return fmt.Errorf("%w: k %d, must be >= 1", search.ErrInvalidConfig, c.K)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("%w: lambda %v, must be in [0, 1]", search.ErrInvalidConfig, c.Lambda)
	}
	if c.DiversityThreshold < 0 || c.DiversityThreshold > 1 {
		return fmt.Errorf("%w: diversity threshold %v, must be in [0, 1]", search.ErrInvalidConfig, c.DiversityThreshold)
	}
	if _, err := Combined(c.JaccardWeight, c.EditWeight); err != nil {
		return err
	}
	return nil
}

// Search runs diverse decoding.
//
// Thread Safety: Safe for concurrent Run calls when the generator and
// scorer are.
type Search struct {
	gen      search.Generator
	scorer   search.Scorer
	config   Config
	sampling search.SamplingOptions
	sim      Metric
	logger   *slog.Logger
}

// Option configures a Search.
type Option func(*Search)

// WithSampling sets base sampling options; temperature is overridden per
// call from the configured temperature cycle.
func WithSampling(opts search.SamplingOptions) Option {
	return func(s *Search) {
		s.sampling = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Search) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a diverse decoding search over the given generator and scorer.
func New(gen search.Generator, scorer search.Scorer, config Config, opts ...Option) (*Search, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is nil", search.ErrInvalidConfig)
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: scorer is nil", search.ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sim, err := Combined(config.JaccardWeight, config.EditWeight)
	if err != nil {
		return nil, err
	}
	if len(config.Temperatures) == 0 {
		config.Temperatures = DefaultTemperatures
	}

	s := &Search{
		gen:    gen,
		scorer: scorer,
		config: config,
		sim:    sim,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the search for one prompt.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - prompt: The task prompt.
//   - vctx: Verification context passed through to every verifier.
//
// Outputs:
//   - *search.Result: The diverse selection as trace; Best is the selected
//     member with the highest relevance.
//   - error: ErrEmptyCandidatePool when nothing was generated or scored.
func (s *Search) Run(ctx context.Context, prompt string, vctx verify.Context) (*search.Result, error) {
	ctx, span := tracer.Start(ctx, "diverse.Search.Run",
		trace.WithAttributes(
			attribute.Int("num_candidates", s.config.NumCandidates),
			attribute.Int("k", s.config.K),
			attribute.Float64("lambda", s.config.Lambda),
		),
	)
	defer span.End()

	state := search.NewState(s.config.NumCandidates)

	pool := s.samplePool(ctx, prompt)
	state = state.DecrementBudget(s.config.NumCandidates)
	if len(pool) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: generator produced no candidates", search.ErrEmptyCandidatePool)
	}

	scored, err := s.score(ctx, pool, vctx)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("%w: no candidate survived scoring", search.ErrEmptyCandidatePool)
	}

	// Drop near-duplicates of more relevant candidates before MMR runs, so
	// they can never crowd the selection even transiently. The in-MMR gate
	// stays as the invariant on whatever survives.
	scored = FilterNearDuplicates(scored, s.config.DiversityThreshold, s.sim)

	selected := SelectMMR(scored, s.config.K, s.config.Lambda, s.sim, s.config.DiversityThreshold)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: selection is empty", search.ErrEmptyCandidatePool)
	}

	best := selected[0]
	for _, cand := range selected[1:] {
		if cand.Relevance > best.Relevance {
			best = cand
		}
	}
	state = state.UpdateBest(best.Candidate, best.Relevance).Advance()

	span.SetAttributes(
		attribute.Int("selected", len(selected)),
		attribute.Float64("best_relevance", best.Relevance),
	)

	selection := make([]*candidate.Candidate, len(selected))
	for i, cand := range selected {
		selection[i] = cand.Candidate
	}

	// One sampling pass is the whole plan; spending the budget on it is
	// completion, never pre-emption.
	return &search.Result{
		Best:            best.Candidate,
		BestScore:       best.Relevance,
		Trace:           selection,
		Iterations:      state.Iterations,
		Converged:       state.Converged,
		BudgetExhausted: false,
	}, nil
}

// samplePool generates the candidate pool, cycling configured temperatures.
// Individual generation failures shrink the pool rather than aborting.
func (s *Search) samplePool(ctx context.Context, prompt string) []*candidate.Candidate {
	pool := make([]*candidate.Candidate, 0, s.config.NumCandidates)
	for i := 0; i < s.config.NumCandidates; i++ {
		if ctx.Err() != nil {
			break
		}
		opts := s.sampling
		opts.Temperature = s.config.Temperatures[i%len(s.config.Temperatures)]
		cand, err := search.GenerateWithRetry(ctx, s.gen, prompt, opts)
		if err != nil {
			s.logger.Warn("sample generation failed",
				slog.Int("sample", i),
				slog.String("error", err.Error()))
			continue
		}
		pool = append(pool, cand)
	}
	return pool
}

// score verifies the whole pool in one batch. Unscored candidates drop out.
func (s *Search) score(ctx context.Context, pool []*candidate.Candidate, vctx verify.Context) ([]Scored, error) {
	results, err := s.scorer.VerifyAll(ctx, pool, vctx)
	if err != nil {
		return nil, err
	}
	scored := make([]Scored, 0, len(pool))
	for i, res := range results {
		if res == nil || res.Score == nil {
			continue
		}
		scored = append(scored, Scored{Candidate: pool[i], Relevance: *res.Score})
	}
	return scored, nil
}
