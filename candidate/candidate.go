// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package candidate defines the immutable value types passed between the
// search algorithms and the verification layer: Candidate (one generated
// response) and VerificationResult (one verifier's judgment of it).
package candidate

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// seqCounter assigns a process-wide monotonic sequence number to every
// candidate. Tie-breaks in all search algorithms resolve by sequence so
// that "earlier-generated wins" is well defined even when two candidates
// share a creation timestamp.
var seqCounter atomic.Uint64

// Candidate is one generated response to a prompt.
//
// A Candidate is immutable after creation. A score is never written in
// place; WithScore returns a scored copy.
//
// Thread Safety: Safe to share across goroutines (read-only after creation).
type Candidate struct {
	// ID uniquely identifies this candidate.
	ID string `json:"id"`

	// Content is the response text.
	Content string `json:"content"`

	// Reasoning is the optional reasoning trace that produced Content.
	Reasoning string `json:"reasoning,omitempty"`

	// Score is the verified quality score, nil until verification attaches one.
	Score *float64 `json:"score,omitempty"`

	// TokensUsed is the token count reported by the generator, if known.
	TokensUsed *int `json:"tokens_used,omitempty"`

	// Model names the model that produced this candidate, if known.
	Model string `json:"model,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Seq is the monotonic creation sequence number. Lower means earlier.
	Seq uint64 `json:"seq"`

	// Metadata carries open key/value context.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Option configures a Candidate during creation.
type Option func(*Candidate)

// WithReasoning attaches a reasoning trace.
func WithReasoning(reasoning string) Option {
	return func(c *Candidate) {
		c.Reasoning = reasoning
	}
}

// WithModel records the producing model name.
func WithModel(model string) Option {
	return func(c *Candidate) {
		c.Model = model
	}
}

// WithTokensUsed records the token usage of the generation call.
func WithTokensUsed(tokens int) Option {
	return func(c *Candidate) {
		c.TokensUsed = &tokens
	}
}

// WithMetadata merges the given entries into the candidate's metadata.
func WithMetadata(meta map[string]any) Option {
	return func(c *Candidate) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			c.Metadata[k] = v
		}
	}
}

// WithID overrides the generated ID. Intended for deserialization paths.
func WithID(id string) Option {
	return func(c *Candidate) {
		c.ID = id
	}
}

// New creates a candidate with a fresh UUID and sequence number.
//
// Inputs:
//   - content: The response text.
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *Candidate: The created candidate, never nil.
func New(content string, opts ...Option) *Candidate {
	c := &Candidate{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now(),
		Seq:       seqCounter.Add(1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithScore returns a copy of the candidate with the given score attached.
// The receiver is not modified.
func (c *Candidate) WithScore(score float64) *Candidate {
	cp := *c
	cp.Score = &score
	return &cp
}

// ScoreValue returns the attached score and whether one is present.
func (c *Candidate) ScoreValue() (float64, bool) {
	if c.Score == nil {
		return 0, false
	}
	return *c.Score, true
}

// Clone returns a deep copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	cp := *c
	if c.Score != nil {
		score := *c.Score
		cp.Score = &score
	}
	if c.TokensUsed != nil {
		tokens := *c.TokensUsed
		cp.TokensUsed = &tokens
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// String returns a short human-readable representation.
func (c *Candidate) String() string {
	score := "unscored"
	if c.Score != nil {
		score = fmt.Sprintf("%.3f", *c.Score)
	}
	return fmt.Sprintf("Candidate{id=%s, seq=%d, score=%s}", c.ID, c.Seq, score)
}

// ToMap serializes the candidate to a generic map without field loss.
func (c *Candidate) ToMap() map[string]any {
	m := map[string]any{
		"id":         c.ID,
		"content":    c.Content,
		"created_at": c.CreatedAt.Format(time.RFC3339Nano),
		"seq":        c.Seq,
	}
	if c.Reasoning != "" {
		m["reasoning"] = c.Reasoning
	}
	if c.Score != nil {
		m["score"] = *c.Score
	}
	if c.TokensUsed != nil {
		m["tokens_used"] = *c.TokensUsed
	}
	if c.Model != "" {
		m["model"] = c.Model
	}
	if len(c.Metadata) > 0 {
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	return m
}

// FromMap reconstructs a candidate from a map produced by ToMap.
//
// Outputs:
//   - *Candidate: The reconstructed candidate.
//   - error: Non-nil if required fields are missing or malformed.
func FromMap(m map[string]any) (*Candidate, error) {
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("candidate: map is missing id")
	}
	content, ok := m["content"].(string)
	if !ok {
		return nil, fmt.Errorf("candidate: map is missing content")
	}

	c := &Candidate{ID: id, Content: content}

	if s, ok := m["created_at"].(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("candidate: parse created_at: %w", err)
		}
		c.CreatedAt = ts
	}
	if seq, ok := toUint64(m["seq"]); ok {
		c.Seq = seq
	}
	if reasoning, ok := m["reasoning"].(string); ok {
		c.Reasoning = reasoning
	}
	if score, ok := toFloat64(m["score"]); ok {
		c.Score = &score
	}
	if tokens, ok := toUint64(m["tokens_used"]); ok {
		t := int(tokens)
		c.TokensUsed = &t
	}
	if model, ok := m["model"].(string); ok {
		c.Model = model
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		c.Metadata = make(map[string]any, len(meta))
		for k, v := range meta {
			c.Metadata[k] = v
		}
	}

	return c, nil
}

// toFloat64 accepts the numeric types that JSON decoding and ToMap produce.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
