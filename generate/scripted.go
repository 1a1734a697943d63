// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"fmt"
	"sync"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
)

// Scripted replays a fixed output cycle. It exists for deterministic tests
// and offline dry runs of a search configuration; it never talks to a model.
//
// Thread Safety: Safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	outputs []string
	calls   int
}

// NewScripted creates a generator cycling through outputs.
func NewScripted(outputs ...string) *Scripted {
	return &Scripted{outputs: outputs}
}

// Generate implements search.Generator.
func (g *Scripted) Generate(ctx context.Context, _ string, _ search.SamplingOptions) (*candidate.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.outputs) == 0 {
		return nil, fmt.Errorf("scripted generator has no outputs")
	}
	out := g.outputs[g.calls%len(g.outputs)]
	g.calls++
	return candidate.New(out, candidate.WithModel("scripted")), nil
}

// Calls reports how many generations have been served.
func (g *Scripted) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
