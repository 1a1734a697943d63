// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package beam implements verification-guided beam search: the top scoring
// candidates are carried between expansion depths and compete with their
// own continuations.
package beam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
	"github.com/crucible-ai/crucible/verify"
)

var tracer = otel.Tracer("crucible.search.beam")

// ErrEmptyBeam reports that no candidate survived scoring at some depth.
// The search cannot proceed with an empty beam and never silently returns
// a nil best.
var ErrEmptyBeam = errors.New("beam: empty beam")

// Config holds beam search parameters.
type Config struct {
	// BeamWidth is the number of candidates carried between depths.
	// Width 1 degenerates to greedy search. Must be >= 1.
	BeamWidth int

	// Depth is the number of expansion levels after the initial beam.
	// Must be >= 1.
	Depth int

	// BranchingFactor is the number of continuations requested per beam
	// member at each level. Must be >= 1.
	BranchingFactor int

	// NoImprovementWindow enables convergence detection: stop early when
	// the best score improves by no more than Epsilon over this many
	// levels. 0 disables the check.
	NoImprovementWindow int

	// Epsilon is the minimum improvement that counts as progress.
	Epsilon float64
}

// DefaultConfig returns a small beam suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		BeamWidth:       3,
		Depth:           3,
		BranchingFactor: 2,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.BeamWidth < 1 {
		return fmt.Errorf("%w: beam width %d, must be >= 1", search.ErrInvalidConfig, c.BeamWidth)
	}
	if c.Depth < 1 {
		return fmt.Errorf("%w: depth %d, must be >= 1", search.ErrInvalidConfig, c.Depth)
	}
	if c.BranchingFactor < 1 {
		return fmt.Errorf("%w: branching factor %d, must be >= 1", search.ErrInvalidConfig, c.BranchingFactor)
	}
	if c.NoImprovementWindow < 0 {
		return fmt.Errorf("%w: no-improvement window %d, must be >= 0", search.ErrInvalidConfig, c.NoImprovementWindow)
	}
	return nil
}

// TerminalFn reports whether a candidate is a finished answer. When every
// beam member is terminal the search stops before exhausting its depth.
type TerminalFn func(*candidate.Candidate) bool

// ExpandPromptFn builds the continuation prompt for one beam member.
type ExpandPromptFn func(root string, cand *candidate.Candidate) string

func defaultExpandPrompt(root string, cand *candidate.Candidate) string {
	return root + "\n\nContinue from this partial answer, improving or completing it:\n" + cand.Content
}

// Search runs verification-guided beam search.
//
// Thread Safety: Not safe for concurrent Run calls on the same receiver
// with a stateful generator; the beam itself is owned by a single Run.
type Search struct {
	gen      search.Generator
	scorer   search.Scorer
	config   Config
	sampling search.SamplingOptions
	terminal TerminalFn
	expand   ExpandPromptFn
	logger   *slog.Logger
}

// Option configures a Search.
type Option func(*Search)

// WithSampling sets the sampling options passed to every generation call.
func WithSampling(opts search.SamplingOptions) Option {
	return func(s *Search) {
		s.sampling = opts
	}
}

// WithTerminal sets the terminal-candidate predicate.
func WithTerminal(fn TerminalFn) Option {
	return func(s *Search) {
		s.terminal = fn
	}
}

// WithExpandPrompt overrides how continuation prompts are built.
func WithExpandPrompt(fn ExpandPromptFn) Option {
	return func(s *Search) {
		if fn != nil {
			s.expand = fn
		}
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

// New creates a beam search over the given generator and scorer.
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

	s := &Search{
		gen:    gen,
		scorer: scorer,
		config: config,
		expand: defaultExpandPrompt,
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
//   - prompt: The root task prompt.
//   - vctx: Verification context passed through to every verifier.
//
// Outputs:
//   - *search.Result: Best candidate plus the final beam as trace.
//   - error: ErrEmptyBeam when no candidate ever survived scoring.
func (s *Search) Run(ctx context.Context, prompt string, vctx verify.Context) (*search.Result, error) {
	ctx, span := tracer.Start(ctx, "beam.Search.Run",
		trace.WithAttributes(
			attribute.Int("beam_width", s.config.BeamWidth),
			attribute.Int("depth", s.config.Depth),
			attribute.Int("branching_factor", s.config.BranchingFactor),
		),
	)
	defer span.End()

	// Budget is measured in generations.
	budget := s.config.BeamWidth + s.config.Depth*s.config.BeamWidth*s.config.BranchingFactor
	state := search.NewState(budget)

	b := newBeam(s.config.BeamWidth)

	// Initial level: beamWidth candidates straight from the root prompt.
	initial, err := search.GenerateN(ctx, s.gen, prompt, s.config.BeamWidth, s.sampling)
	if err != nil {
		return nil, err
	}
	state = state.DecrementBudget(s.config.BeamWidth)

	entries, err := s.score(ctx, initial, vctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no initial candidate survived scoring", ErrEmptyBeam)
	}
	b.merge(entries)
	state = state.UpdateBest(b.best().Candidate, b.best().Score())
	state = state.Advance()

	// Exhaustion is only reported when it cuts planned levels short; a run
	// that spends its whole budget completing the plan is not pre-empted.
	exhausted := false
	for level := 0; level < s.config.Depth; level++ {
		if state.ShouldStop() {
			exhausted = state.BudgetExhausted()
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.allTerminal(b) {
			s.logger.Debug("beam fully terminal", slog.Int("level", level))
			break
		}

		expansions := s.expandBeam(ctx, prompt, b)
		state = state.DecrementBudget(len(expansions))
		if len(expansions) == 0 {
			// Generator produced nothing at this level. The carried
			// beam is still a valid partial result.
			s.logger.Warn("no expansions generated", slog.Int("level", level))
			break
		}

		scored, err := s.score(ctx, expansions, vctx)
		if err != nil && len(scored) == 0 {
			// Existing beam members still stand.
			s.logger.Warn("expansion scoring failed",
				slog.Int("level", level),
				slog.String("error", err.Error()))
			state = state.Advance()
			continue
		}

		b.merge(scored)
		state = state.UpdateBest(b.best().Candidate, b.best().Score())
		state = state.Advance()
		if s.config.NoImprovementWindow > 0 {
			state = state.CheckConvergence(s.config.NoImprovementWindow, s.config.Epsilon)
		}
	}

	best := b.best()
	span.SetAttributes(attribute.Float64("best_score", best.Score()))

	return &search.Result{
		Best:            best.Candidate,
		BestScore:       best.Score(),
		Trace:           b.candidates(),
		Iterations:      state.Iterations,
		Converged:       state.Converged,
		BudgetExhausted: exhausted,
	}, nil
}

// expandBeam asks the generator for continuations of every beam member.
// Per-member generation failures drop those continuations only.
func (s *Search) expandBeam(ctx context.Context, prompt string, b *beam) []*candidate.Candidate {
	var expansions []*candidate.Candidate
	for _, entry := range b.entries {
		if s.terminal != nil && s.terminal(entry.Candidate) {
			continue
		}
		continuations, err := search.GenerateN(ctx, s.gen, s.expand(prompt, entry.Candidate), s.config.BranchingFactor, s.sampling)
		if err != nil {
			s.logger.Warn("expansion failed for beam member",
				slog.String("candidate_id", entry.Candidate.ID),
				slog.String("error", err.Error()))
			continue
		}
		expansions = append(expansions, continuations...)
	}
	return expansions
}

// score verifies candidates in one batch and pairs survivors with their
// results. Unscored candidates are dropped.
func (s *Search) score(ctx context.Context, cands []*candidate.Candidate, vctx verify.Context) ([]Entry, error) {
	results, err := s.scorer.VerifyAll(ctx, cands, vctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(cands))
	for i, res := range results {
		if res == nil || res.Score == nil {
			continue
		}
		entries = append(entries, Entry{Candidate: cands[i], Result: res})
	}
	return entries, nil
}

func (s *Search) allTerminal(b *beam) bool {
	if s.terminal == nil {
		return false
	}
	for _, entry := range b.entries {
		if !s.terminal(entry.Candidate) {
			return false
		}
	}
	return true
}
