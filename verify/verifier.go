// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"

	"github.com/crucible-ai/crucible/candidate"
)

// Context is an open key/value bag passed through to every verifier
// unmodified. Typical keys: the original prompt, ground truth, step index.
type Context map[string]any

// Verifier scores candidates. Implementations are opaque to the core:
// outcome checkers, process-reward models, and tool-execution verifiers
// all satisfy the same interface and are selected at configuration time.
//
// Thread Safety: Implementations must tolerate concurrent calls up to the
// Runner's configured concurrency bound.
type Verifier interface {
	// Name identifies the verifier in events, metadata, and errors.
	Name() string

	// Verify judges one candidate. A nil Score in the result means the
	// verifier declined to score; the Runner treats that as a failure of
	// this verifier, subject to the configured error policy.
	Verify(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error)
}

// BatchVerifier is an optional extension for verifiers that benefit from
// judging many candidates in one call (shared model warm-up, batched
// inference). Results must align with the input order.
type BatchVerifier interface {
	Verifier

	VerifyBatch(ctx context.Context, cands []*candidate.Candidate, vctx Context) ([]*candidate.VerificationResult, error)
}

// WeightedVerifier pairs a verifier with its ensemble weight and optional
// per-verifier configuration. Weight must be > 0; it only influences the
// WeightedAvg aggregation strategy.
type WeightedVerifier struct {
	Verifier Verifier
	Config   map[string]any
	Weight   float64
}
