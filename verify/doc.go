// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify orchestrates ensembles of candidate verifiers.
//
// A Verifier is an opaque scoring function: it judges one candidate and
// returns a VerificationResult. The Runner executes a weighted set of
// verifiers against candidates, sequentially or in parallel under a shared
// timeout, applies a partial-failure policy, and folds the surviving scores
// into a single aggregated result per candidate.
//
// Every search algorithm in this module scores candidates exclusively
// through a Runner; none computes ad-hoc scores of its own. That keeps
// scoring behavior centralized, observable, and testable.
//
// # Basic Usage
//
//	runner, err := verify.NewRunner(
//	    []verify.WeightedVerifier{
//	        {Verifier: verify.NewExactMatch("345"), Weight: 2},
//	        {Verifier: myProcessVerifier, Weight: 1},
//	    },
//	    verify.WithParallel(true),
//	    verify.WithAggregation(verify.AggregationWeightedAvg),
//	)
//	if err != nil {
//	    return err
//	}
//	result, err := runner.VerifyCandidate(ctx, cand, verify.Context{"prompt": prompt})
//
// # Failure Policy
//
// With PolicyContinue (the default) a failing or timed-out verifier is
// recorded and excluded from aggregation; the run fails only when every
// verifier fails (ErrAllVerifiersFailed). With PolicyHalt the first failure
// aborts the whole run. A score is never synthesized from zero inputs.
package verify
