// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import "errors"

// Sentinel errors shared by the search algorithms.
var (
	// ErrInvalidConfig reports bad construction parameters. Fatal, raised
	// before any search runs, never retried.
	ErrInvalidConfig = errors.New("search: invalid configuration")

	// ErrGeneratorFailure reports that the generator could not produce a
	// candidate after the bounded retry budget.
	ErrGeneratorFailure = errors.New("search: generator failure")

	// ErrEmptyCandidatePool reports that a search has zero candidates to
	// work with and cannot proceed.
	ErrEmptyCandidatePool = errors.New("search: empty candidate pool")
)
