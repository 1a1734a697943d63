// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package candidate

import "fmt"

// VerificationResult is one verifier's judgment of one candidate.
//
// Score and Confidence are in [0, 1] when present. StepScores supports
// step-level process verification: one entry per reasoning step.
//
// Thread Safety: Safe to share across goroutines (read-only after creation).
type VerificationResult struct {
	// CandidateID identifies the judged candidate.
	CandidateID string `json:"candidate_id"`

	// Score is the quality score in [0, 1], nil if the verifier declined to score.
	Score *float64 `json:"score,omitempty"`

	// Confidence is the verifier's confidence in its own score, in [0, 1].
	Confidence *float64 `json:"confidence,omitempty"`

	// Reasoning explains the score.
	Reasoning string `json:"reasoning,omitempty"`

	// StepScores maps step identifiers to per-step scores.
	StepScores map[string]float64 `json:"step_scores,omitempty"`

	// Metadata carries open key/value context (raw per-verifier scores,
	// failures, timings).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult creates a scored verification result for a candidate.
func NewResult(candidateID string, score float64) *VerificationResult {
	return &VerificationResult{
		CandidateID: candidateID,
		Score:       &score,
	}
}

// ScoreValue returns the score and whether one is present.
func (r *VerificationResult) ScoreValue() (float64, bool) {
	if r.Score == nil {
		return 0, false
	}
	return *r.Score, true
}

// MergeStepScores combines two step-score maps. On key collision the second
// map wins (last-write-wins). Neither input is modified.
func MergeStepScores(a, b map[string]float64) map[string]float64 {
	if a == nil && b == nil {
		return nil
	}
	merged := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// ToMap serializes the result to a generic map without field loss.
func (r *VerificationResult) ToMap() map[string]any {
	m := map[string]any{
		"candidate_id": r.CandidateID,
	}
	if r.Score != nil {
		m["score"] = *r.Score
	}
	if r.Confidence != nil {
		m["confidence"] = *r.Confidence
	}
	if r.Reasoning != "" {
		m["reasoning"] = r.Reasoning
	}
	if len(r.StepScores) > 0 {
		steps := make(map[string]float64, len(r.StepScores))
		for k, v := range r.StepScores {
			steps[k] = v
		}
		m["step_scores"] = steps
	}
	if len(r.Metadata) > 0 {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	return m
}

// ResultFromMap reconstructs a verification result from a map produced by ToMap.
func ResultFromMap(m map[string]any) (*VerificationResult, error) {
	candidateID, ok := m["candidate_id"].(string)
	if !ok || candidateID == "" {
		return nil, fmt.Errorf("candidate: result map is missing candidate_id")
	}

	r := &VerificationResult{CandidateID: candidateID}

	if score, ok := toFloat64(m["score"]); ok {
		r.Score = &score
	}
	if conf, ok := toFloat64(m["confidence"]); ok {
		r.Confidence = &conf
	}
	if reasoning, ok := m["reasoning"].(string); ok {
		r.Reasoning = reasoning
	}
	switch steps := m["step_scores"].(type) {
	case map[string]float64:
		r.StepScores = make(map[string]float64, len(steps))
		for k, v := range steps {
			r.StepScores[k] = v
		}
	case map[string]any:
		// JSON decoding produces map[string]any.
		r.StepScores = make(map[string]float64, len(steps))
		for k, v := range steps {
			f, ok := toFloat64(v)
			if !ok {
				return nil, fmt.Errorf("candidate: step score %q is not numeric", k)
			}
			r.StepScores[k] = f
		}
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		r.Metadata = make(map[string]any, len(meta))
		for k, v := range meta {
			r.Metadata[k] = v
		}
	}

	return r, nil
}
