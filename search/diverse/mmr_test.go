// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diverse

import (
	"testing"

	"github.com/crucible-ai/crucible/candidate"
)

func pool(items ...Scored) []Scored {
	return items
}

func scored(content string, relevance float64) Scored {
	return Scored{Candidate: candidate.New(content), Relevance: relevance}
}

func TestSelectMMRPureRelevance(t *testing.T) {
	// lambda=1: selection order is exactly descending relevance.
	p := pool(
		scored("low", 0.2),
		scored("high", 0.9),
		scored("mid", 0.5),
	)
	selected := SelectMMR(p, 3, 1.0, Jaccard, 1.0)

	want := []string{"high", "mid", "low"}
	if len(selected) != 3 {
		t.Fatalf("selected %d, want 3", len(selected))
	}
	for i, w := range want {
		if selected[i].Candidate.Content != w {
			t.Errorf("selected[%d] = %q, want %q", i, selected[i].Candidate.Content, w)
		}
	}
}

func TestSelectMMRPureDiversity(t *testing.T) {
	// lambda=0 with a tight threshold: no two selected members may be
	// more similar than the threshold when the pool admits a diverse set.
	p := pool(
		scored("alpha beta gamma", 0.9),
		scored("alpha beta delta", 0.8), // near-duplicate of the first
		scored("epsilon zeta eta", 0.1),
		scored("theta iota kappa", 0.2),
	)
	threshold := 0.4
	selected := SelectMMR(p, 3, 0.0, Jaccard, threshold)

	for i := range selected {
		for j := i + 1; j < len(selected); j++ {
			sim := Jaccard(selected[i].Candidate.Content, selected[j].Candidate.Content)
			if sim > threshold {
				t.Errorf("selected pair (%q, %q) similarity %v exceeds threshold %v",
					selected[i].Candidate.Content, selected[j].Candidate.Content, sim, threshold)
			}
		}
	}
	if len(selected) != 3 {
		t.Errorf("selected %d, want 3 (a diverse triple exists)", len(selected))
	}
}

func TestSelectMMRStopsWhenNothingDissimilarRemains(t *testing.T) {
	p := pool(
		scored("same words here", 0.9),
		scored("same words here too", 0.8),
		scored("same words here also", 0.7),
	)
	selected := SelectMMR(p, 3, 0.5, Jaccard, 0.3)

	// Everything is mutually similar; only the first pick fits.
	if len(selected) != 1 {
		t.Errorf("selected %d, want 1 rather than admitting near-duplicates", len(selected))
	}
}

func TestSelectMMRFirstPickIsMostRelevant(t *testing.T) {
	p := pool(
		scored("a", 0.3),
		scored("b", 0.8),
		scored("c", 0.5),
	)
	for _, lambda := range []float64{0.0, 0.5, 1.0} {
		selected := SelectMMR(p, 1, lambda, Jaccard, 1.0)
		if len(selected) != 1 {
			t.Fatalf("lambda=%v selected %d, want 1", lambda, len(selected))
		}
		// With nothing selected yet the penalty is 0 for everyone, so
		// relevance decides. At lambda=0 all scores are 0 and the tie
		// breaks toward the earliest-generated candidate.
		want := "b"
		if lambda == 0 {
			want = "a"
		}
		if selected[0].Candidate.Content != want {
			t.Errorf("lambda=%v first pick = %q, want %q", lambda, selected[0].Candidate.Content, want)
		}
	}
}

func TestSelectMMRTieBreaksByCreationOrder(t *testing.T) {
	first := scored("one two", 0.5)
	second := scored("three four", 0.5)
	selected := SelectMMR(pool(first, second), 1, 1.0, Jaccard, 1.0)

	if selected[0].Candidate.ID != first.Candidate.ID {
		t.Errorf("tie selected %q, want the earlier-generated candidate", selected[0].Candidate.Content)
	}
}

func TestSelectMMRBounds(t *testing.T) {
	p := pool(scored("a", 0.5))
	if got := SelectMMR(nil, 3, 0.5, Jaccard, 1.0); got != nil {
		t.Errorf("empty pool selected %v, want nil", got)
	}
	if got := SelectMMR(p, 0, 0.5, Jaccard, 1.0); got != nil {
		t.Errorf("k=0 selected %v, want nil", got)
	}
	if got := SelectMMR(p, 5, 0.5, Jaccard, 1.0); len(got) != 1 {
		t.Errorf("k beyond pool selected %d, want 1", len(got))
	}
}

func TestFilterNearDuplicates(t *testing.T) {
	p := pool(
		scored("the quick brown fox", 0.9),
		scored("the quick brown fox!", 0.8),
		scored("completely different text", 0.5),
	)
	kept := FilterNearDuplicates(p, 0.5, EditDistanceSimilarity)

	if len(kept) != 2 {
		t.Fatalf("kept %d, want 2", len(kept))
	}
	if kept[0].Candidate.Content != "the quick brown fox" {
		t.Errorf("first survivor = %q, want the most relevant of the cluster", kept[0].Candidate.Content)
	}
	if kept[1].Candidate.Content != "completely different text" {
		t.Errorf("second survivor = %q", kept[1].Candidate.Content)
	}
}

func TestFilterNearDuplicatesKeepsMostRelevant(t *testing.T) {
	// The weaker member of the cluster arrives first; relevance, not pool
	// position, decides who survives.
	p := pool(
		scored("the quick brown fox!", 0.3),
		scored("the quick brown fox", 0.9),
	)
	kept := FilterNearDuplicates(p, 0.5, EditDistanceSimilarity)

	if len(kept) != 1 {
		t.Fatalf("kept %d, want 1", len(kept))
	}
	if kept[0].Candidate.Content != "the quick brown fox" {
		t.Errorf("survivor = %q, want the higher-relevance member", kept[0].Candidate.Content)
	}
}
