// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mcts implements Monte-Carlo tree search over generated reasoning
// steps. Verifier scores replace random rollouts: one simulation selects a
// promising node, expands it with one generated continuation, scores that
// continuation, and backpropagates the score to the root.
package mcts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
	"github.com/crucible-ai/crucible/verify"
)

var tracer = otel.Tracer("crucible.search.mcts")

const (
	// DefaultExplorationConstant is the UCB1 c parameter, sqrt(2).
	DefaultExplorationConstant = math.Sqrt2

	// DefaultMaxChildren caps expansions per node.
	DefaultMaxChildren = 3
)

// Config holds MCTS parameters.
type Config struct {
	// Simulations is the number of select/expand/score/backpropagate
	// cycles. Must be >= 1.
	Simulations int

	// ExplorationConstant is the UCB1 c parameter. Must be > 0.
	ExplorationConstant float64

	// MaxDepth caps how deep the tree may grow. Must be >= 1.
	MaxDepth int

	// MaxChildren caps expansions per node. Must be >= 1.
	MaxChildren int
}

// DefaultConfig returns parameters suitable for short reasoning tasks.
func DefaultConfig() Config {
	return Config{
		Simulations:         50,
		ExplorationConstant: DefaultExplorationConstant,
		MaxDepth:            5,
		MaxChildren:         DefaultMaxChildren,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.Simulations < 1 {
		return fmt.Errorf("%w: simulations %d, must be >= 1", search.ErrInvalidConfig, c.Simulations)
	}
	if c.ExplorationConstant <= 0 {
		return fmt.Errorf("%w: exploration constant %v, must be > 0", search.ErrInvalidConfig, c.ExplorationConstant)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth %d, must be >= 1", search.ErrInvalidConfig, c.MaxDepth)
	}
	if c.MaxChildren < 1 {
		return fmt.Errorf("%w: max children %d, must be >= 1", search.ErrInvalidConfig, c.MaxChildren)
	}
	return nil
}

// TerminalFn reports whether a candidate is a finished answer.
type TerminalFn func(*candidate.Candidate) bool

// Search runs verifier-guided MCTS.
//
// Thread Safety: The tree built by Run is owned by that call alone; run
// searches concurrently only with independent Search values or a stateless
// generator.
type Search struct {
	gen      search.Generator
	scorer   search.Scorer
	config   Config
	sampling search.SamplingOptions
	terminal TerminalFn
	logger   *slog.Logger
}

// Option configures a Search.
type Option func(*Search)

// WithSampling sets the sampling options for every generation call.
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Search) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an MCTS search over the given generator and scorer.
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
//   - *search.Result: The root child with the highest mean value, plus all
//     root children as trace.
//   - error: ErrEmptyCandidatePool when the tree never grew a child.
func (s *Search) Run(ctx context.Context, prompt string, vctx verify.Context) (*search.Result, error) {
	ctx, span := tracer.Start(ctx, "mcts.Search.Run",
		trace.WithAttributes(
			attribute.Int("simulations", s.config.Simulations),
			attribute.Int("max_depth", s.config.MaxDepth),
			attribute.Float64("exploration_constant", s.config.ExplorationConstant),
		),
	)
	defer span.End()

	root := newRoot()
	state := search.NewState(s.config.Simulations)

	// Exhaustion is only reported when it pre-empts planned simulations;
	// finishing all of them is the plan, not a cut-off.
	exhausted := false
	for i := 0; i < s.config.Simulations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if state.ShouldStop() {
			exhausted = state.BudgetExhausted()
			break
		}

		var err error
		state, err = s.simulate(ctx, root, prompt, state, vctx)
		if err != nil {
			// A failed simulation consumes budget but does not kill
			// the search; earlier simulations still stand.
			s.logger.Warn("simulation failed",
				slog.Int("simulation", i),
				slog.String("error", err.Error()))
		}
		state = state.DecrementBudget(1).Advance()
	}

	if len(root.Children) == 0 {
		return nil, fmt.Errorf("%w: no simulation produced a tree node", search.ErrEmptyCandidatePool)
	}

	best := bestChild(root)
	span.SetAttributes(
		attribute.Float64("best_mean", best.Mean()),
		attribute.Int("root_visits", root.Visits),
	)

	explored := make([]*candidate.Candidate, len(root.Children))
	for i, child := range root.Children {
		explored[i] = child.Candidate
	}

	return &search.Result{
		Best:            best.Candidate,
		BestScore:       best.Mean(),
		Trace:           explored,
		Iterations:      state.Iterations,
		Converged:       state.Converged,
		BudgetExhausted: exhausted,
	}, nil
}

// simulate runs one select/expand/score/backpropagate cycle.
func (s *Search) simulate(ctx context.Context, root *Node, prompt string, state search.State, vctx verify.Context) (search.State, error) {
	leaf := selectLeaf(root, s.config.ExplorationConstant, s.config.MaxChildren, s.config.MaxDepth)

	node := leaf
	if !leaf.Terminal && !leaf.fullyExpanded(s.config.MaxChildren) && leaf.Depth < s.config.MaxDepth {
		cand, err := search.GenerateWithRetry(ctx, s.gen, s.pathPrompt(prompt, leaf), s.sampling)
		if err != nil {
			return state, err
		}
		terminal := s.terminal != nil && s.terminal(cand)
		node = leaf.addChild(cand, terminal)
	}

	if node.Candidate == nil {
		// Only the bare root reaches here; nothing to score.
		return state, nil
	}

	result, err := s.scorer.VerifyCandidate(ctx, node.Candidate, vctx)
	if err != nil {
		// Unscorable nodes backpropagate zero so selection stops
		// revisiting them for free, rather than staying at +Inf forever.
		node.backpropagate(0)
		return state, err
	}

	score := 0.0
	if result.Score != nil {
		score = *result.Score
	}
	node.backpropagate(score)
	return state.UpdateBest(node.Candidate, score), nil
}

// pathPrompt conditions the generator on the reasoning path down to node.
func (s *Search) pathPrompt(prompt string, node *Node) string {
	path := node.path()
	if len(path) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nReasoning so far:\n")
	for _, cand := range path {
		b.WriteString(cand.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nContinue with the next step or final answer:")
	return b.String()
}

// bestChild picks the root child for the final answer by highest mean value
// (exploitation only, no exploration bonus). Ties break by highest visit
// count, then by earliest creation.
func bestChild(root *Node) *Node {
	best := root.Children[0]
	for _, child := range root.Children[1:] {
		switch {
		case child.Mean() > best.Mean():
			best = child
		case child.Mean() == best.Mean() && child.Visits > best.Visits:
			best = child
		}
	}
	return best
}
