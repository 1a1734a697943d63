// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diverse

import (
	"fmt"
	"strings"

	"github.com/crucible-ai/crucible/search"
)

// Metric computes pairwise similarity in [0, 1].
type Metric func(a, b string) float64

// Tokenize splits text into lowercase word tokens.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// Jaccard is token-set overlap: |A ∩ B| / |A ∪ B|. Two empty token sets
// are defined as identical (similarity 1).
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// EditDistanceSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)),
// computed over runes. Two empty strings are identical (similarity 1).
func EditDistanceSimilarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with a rolling two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Combined blends Jaccard and edit-distance similarity. The weights must
// sum to 1 and are validated here, at construction, not at first use.
func Combined(wJaccard, wEdit float64) (Metric, error) {
	if wJaccard < 0 || wEdit < 0 {
		return nil, fmt.Errorf("%w: similarity weights must be >= 0", search.ErrInvalidConfig)
	}
	const tolerance = 1e-9
	if sum := wJaccard + wEdit; sum < 1-tolerance || sum > 1+tolerance {
		return nil, fmt.Errorf("%w: similarity weights sum to %v, must sum to 1", search.ErrInvalidConfig, sum)
	}
	return func(a, b string) float64 {
		return wJaccard*Jaccard(a, b) + wEdit*EditDistanceSimilarity(a, b)
	}, nil
}
