// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"strings"

	"github.com/crucible-ai/crucible/candidate"
)

// ContextKeyExpected is the verification-context key ExactMatch consults
// when no expected answer was configured at construction time.
const ContextKeyExpected = "expected"

// ExactMatch is an outcome verifier: score 1.0 when the candidate content
// matches the expected answer after normalization, 0.0 otherwise.
//
// Normalization lowercases and collapses surrounding whitespace so that
// formatting noise from the generator does not mask a correct answer.
type ExactMatch struct {
	expected string
}

// NewExactMatch creates an exact-match verifier. An empty expected answer
// defers to the ContextKeyExpected entry of the verification context.
func NewExactMatch(expected string) *ExactMatch {
	return &ExactMatch{expected: expected}
}

// Name implements Verifier.
func (v *ExactMatch) Name() string {
	return "exact_match"
}

// Verify implements Verifier.
func (v *ExactMatch) Verify(_ context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error) {
	expected := v.expected
	if expected == "" && vctx != nil {
		if s, ok := vctx[ContextKeyExpected].(string); ok {
			expected = s
		}
	}
	if expected == "" {
		// Nothing to compare against. Decline to score instead of
		// inventing a judgment.
		return &candidate.VerificationResult{CandidateID: cand.ID}, nil
	}

	score := 0.0
	if normalize(cand.Content) == normalize(expected) {
		score = 1.0
	}

	result := candidate.NewResult(cand.ID, score)
	confidence := 1.0
	result.Confidence = &confidence
	return result, nil
}

// VerifyBatch implements BatchVerifier. Exact matching is cheap, so the
// batch form exists only to keep whole-ensemble batch runs on the fast path.
func (v *ExactMatch) VerifyBatch(ctx context.Context, cands []*candidate.Candidate, vctx Context) ([]*candidate.VerificationResult, error) {
	results := make([]*candidate.VerificationResult, len(cands))
	for i, cand := range cands {
		res, err := v.Verify(ctx, cand, vctx)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// VerifyFunc adapts a plain function into a Verifier. Useful for inline
// heuristics and tests.
type VerifyFunc struct {
	name string
	fn   func(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error)
}

// NewVerifyFunc wraps fn as a named verifier.
func NewVerifyFunc(name string, fn func(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error)) *VerifyFunc {
	return &VerifyFunc{name: name, fn: fn}
}

// Name implements Verifier.
func (v *VerifyFunc) Name() string {
	return v.name
}

// Verify implements Verifier.
func (v *VerifyFunc) Verify(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error) {
	return v.fn(ctx, cand, vctx)
}

// ScoreFunc adapts a bare scoring function into a Verifier for callers that
// only care about the number.
func ScoreFunc(name string, fn func(cand *candidate.Candidate) float64) *VerifyFunc {
	return NewVerifyFunc(name, func(_ context.Context, cand *candidate.Candidate, _ Context) (*candidate.VerificationResult, error) {
		return candidate.NewResult(cand.ID, fn(cand)), nil
	})
}
