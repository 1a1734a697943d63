// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package beam

import (
	"sort"

	"github.com/crucible-ai/crucible/candidate"
)

// Entry pairs a candidate with its aggregated verification result.
type Entry struct {
	Candidate *candidate.Candidate
	Result    *candidate.VerificationResult
}

// Score returns the entry's aggregated score, 0 if unscored.
func (e Entry) Score() float64 {
	if e.Result == nil || e.Result.Score == nil {
		return 0
	}
	return *e.Result.Score
}

// beam is the bounded best-so-far set carried between depths. Entries are
// kept sorted descending by score; ties break toward the earlier-generated
// candidate so identical runs keep identical beams.
type beam struct {
	width   int
	entries []Entry
}

func newBeam(width int) *beam {
	return &beam{width: width, entries: make([]Entry, 0, width)}
}

// merge folds new entries into the beam, re-sorts, and truncates to width.
// Existing members are carried forward and compete with the newcomers.
func (b *beam) merge(entries []Entry) {
	b.entries = append(b.entries, entries...)
	sort.Slice(b.entries, func(i, j int) bool {
		si, sj := b.entries[i].Score(), b.entries[j].Score()
		if si != sj {
			return si > sj
		}
		return b.entries[i].Candidate.Seq < b.entries[j].Candidate.Seq
	})
	if len(b.entries) > b.width {
		b.entries = b.entries[:b.width]
	}
}

// best returns the top entry. Valid only on a non-empty beam.
func (b *beam) best() Entry {
	return b.entries[0]
}

// candidates returns the beam's candidates in rank order.
func (b *beam) candidates() []*candidate.Candidate {
	out := make([]*candidate.Candidate, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Candidate
	}
	return out
}
