// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diverse

import (
	"sort"

	"github.com/crucible-ai/crucible/candidate"
)

// Scored pairs a candidate with its verification relevance.
type Scored struct {
	Candidate *candidate.Candidate
	Relevance float64
}

// SelectMMR picks up to k candidates by Maximal Marginal Relevance:
//
//	mmr(x) = lambda*relevance(x) - (1-lambda)*max(sim(x, s) for s in selected)
//
// With an empty selection the penalty term is 0, so the first pick is the
// most relevant candidate. Candidates whose similarity to any already
// selected member exceeds maxSimilarity are ineligible; when nothing
// eligible remains the selection stops short of k rather than admitting a
// near-duplicate. Ties break toward the earlier-generated candidate.
func SelectMMR(pool []Scored, k int, lambda float64, sim Metric, maxSimilarity float64) []Scored {
	if k <= 0 || len(pool) == 0 {
		return nil
	}

	selected := make([]Scored, 0, k)
	remaining := make([]Scored, len(pool))
	copy(remaining, pool)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, cand := range remaining {
			penalty := maxSimTo(cand, selected, sim)
			if len(selected) > 0 && penalty > maxSimilarity {
				continue
			}
			score := lambda*cand.Relevance - (1-lambda)*penalty
			if bestIdx == -1 ||
				score > bestScore ||
				(score == bestScore && cand.Candidate.Seq < remaining[bestIdx].Candidate.Seq) {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// maxSimTo is the highest similarity between cand and any selected member,
// 0 for an empty selection.
func maxSimTo(cand Scored, selected []Scored, sim Metric) float64 {
	highest := 0.0
	for _, s := range selected {
		if v := sim(cand.Candidate.Content, s.Candidate.Content); v > highest {
			highest = v
		}
	}
	return highest
}

// FilterNearDuplicates drops pool members whose similarity to a kept member
// exceeds threshold. Within any near-duplicate cluster the highest-relevance
// member survives, ties toward the earlier-generated candidate. Survivors
// come back in their original pool order.
func FilterNearDuplicates(pool []Scored, threshold float64, sim Metric) []Scored {
	ranked := make([]Scored, len(pool))
	copy(ranked, pool)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Candidate.Seq < ranked[j].Candidate.Seq
	})

	kept := make([]Scored, 0, len(pool))
	for _, cand := range ranked {
		if maxSimTo(cand, kept, sim) > threshold {
			continue
		}
		kept = append(kept, cand)
	}

	surviving := make(map[string]bool, len(kept))
	for _, cand := range kept {
		surviving[cand.Candidate.ID] = true
	}
	out := make([]Scored, 0, len(kept))
	for _, cand := range pool {
		if surviving[cand.Candidate.ID] {
			out = append(out, cand)
		}
	}
	return out
}
