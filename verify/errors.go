// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"errors"
	"fmt"
)

// Sentinel errors for the verify package.
var (
	// ErrInvalidConfig reports bad construction parameters. It is fatal and
	// raised before any verification runs; it is never retried.
	ErrInvalidConfig = errors.New("verify: invalid configuration")

	// ErrAllVerifiersFailed reports that no verifier produced a score for a
	// candidate. The candidate is dropped from consideration rather than
	// scored as zero.
	ErrAllVerifiersFailed = errors.New("verify: all verifiers failed")

	// ErrNoScore reports a verifier that returned a result without a score.
	ErrNoScore = errors.New("verify: verifier returned no score")
)

// VerifierError wraps a single verifier failure with enough context to
// debug it: which verifier, which candidate, and the underlying cause.
type VerifierError struct {
	Verifier    string
	CandidateID string
	Err         error
}

// Error implements the error interface.
func (e *VerifierError) Error() string {
	return fmt.Sprintf("verify: verifier %q failed for candidate %s: %v",
		e.Verifier, e.CandidateID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *VerifierError) Unwrap() error {
	return e.Err
}
