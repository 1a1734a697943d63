// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/verify"
)

// SamplingOptions steer one generation call. The zero value asks the
// generator for its own defaults.
type SamplingOptions struct {
	// Temperature controls sampling randomness. 0 means greedy or the
	// generator default.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP is the nucleus sampling cutoff, 0 means generator default.
	TopP float64 `json:"top_p,omitempty"`

	// MaxTokens caps the response length, 0 means generator default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// StopWords terminate generation early when emitted.
	StopWords []string `json:"stop_words,omitempty"`
}

// Generator produces candidates. Implementations wrap external inference
// services and may fail per call (rate limit, timeout); searches treat a
// single failed generation as one missing candidate, not a fatal error.
//
// Thread Safety: Implementations must tolerate the concurrency the calling
// algorithm is configured for.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts SamplingOptions) (*candidate.Candidate, error)
}

// BatchGenerator is an optional extension for generators that produce
// several samples in one call.
type BatchGenerator interface {
	Generator

	GenerateBatch(ctx context.Context, prompt string, n int, opts SamplingOptions) ([]*candidate.Candidate, error)
}

// Scorer is the verification surface the search algorithms depend on.
// *verify.Runner satisfies it; every algorithm scores through a Scorer and
// never computes ad-hoc scores of its own.
type Scorer interface {
	VerifyCandidate(ctx context.Context, cand *candidate.Candidate, vctx verify.Context) (*candidate.VerificationResult, error)
	VerifyAll(ctx context.Context, cands []*candidate.Candidate, vctx verify.Context) ([]*candidate.VerificationResult, error)
}

// Result is what every search algorithm returns.
type Result struct {
	// Best is the winning candidate.
	Best *candidate.Candidate `json:"best"`

	// BestScore is Best's aggregated verification score.
	BestScore float64 `json:"best_score"`

	// Trace is the algorithm-specific supporting set: the final beam, the
	// root's explored children, or the diverse selection.
	Trace []*candidate.Candidate `json:"trace,omitempty"`

	// Iterations counts completed search iterations.
	Iterations int `json:"iterations"`

	// Converged reports whether the search stopped because scores stopped
	// improving.
	Converged bool `json:"converged"`

	// BudgetExhausted reports whether the search stopped because it ran
	// out of compute budget. Not an error; the result is still valid.
	BudgetExhausted bool `json:"budget_exhausted"`
}

// generateRetries bounds retry attempts for one failed generation.
const generateRetries = 2

// GenerateWithRetry asks the generator for one candidate, retrying a small
// bounded number of times before surfacing ErrGeneratorFailure. Context
// cancellation is never retried.
func GenerateWithRetry(ctx context.Context, gen Generator, prompt string, opts SamplingOptions) (*candidate.Candidate, error) {
	var lastErr error
	for attempt := 0; attempt <= generateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, err := gen.Generate(ctx, prompt, opts)
		if err == nil && cand != nil {
			return cand, nil
		}
		if err == nil {
			err = fmt.Errorf("generator returned nil candidate")
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: after %d attempts: %v", ErrGeneratorFailure, generateRetries+1, lastErr)
}

// GenerateN collects up to n candidates for one prompt, using the batch
// call when the generator supports it. Individual failures drop that one
// candidate; the call errors only when nothing at all was produced.
func GenerateN(ctx context.Context, gen Generator, prompt string, n int, opts SamplingOptions) ([]*candidate.Candidate, error) {
	if batch, ok := gen.(BatchGenerator); ok {
		cands, err := batch.GenerateBatch(ctx, prompt, n, opts)
		if err == nil && len(cands) > 0 {
			return cands, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Fall through to per-candidate generation.
	}

	cands := make([]*candidate.Candidate, 0, n)
	for i := 0; i < n; i++ {
		cand, err := GenerateWithRetry(ctx, gen, prompt, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		cands = append(cands, cand)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: no candidates generated for prompt", ErrEmptyCandidatePool)
	}
	return cands, nil
}
