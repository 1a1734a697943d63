// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies runner events.
type EventKind string

const (
	// EventVerifyStart marks the beginning of a candidate verification.
	EventVerifyStart EventKind = "verify_start"

	// EventVerifyStop marks a completed candidate verification.
	EventVerifyStop EventKind = "verify_stop"

	// EventVerifierError marks a single verifier failure within a run.
	EventVerifierError EventKind = "verifier_error"
)

// Event is one structured observation emitted by the Runner. Events are the
// only side-effecting surface of the search core.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Kind classifies the event.
	Kind EventKind `json:"kind"`

	// CandidateID identifies the candidate being verified.
	CandidateID string `json:"candidate_id"`

	// Verifier names the verifier involved, empty for run-level events.
	Verifier string `json:"verifier,omitempty"`

	// Score is the aggregated score, set on stop events.
	Score *float64 `json:"score,omitempty"`

	// Err is the failure message, set on error events.
	Err string `json:"error,omitempty"`

	// Duration is the elapsed wall-clock time, set on stop and error events.
	Duration time.Duration `json:"duration,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives runner events.
//
// Thread Safety: Implementations must be safe for concurrent use; the
// Runner emits from its worker goroutines.
type EventSink interface {
	Emit(event Event)
}

// newEvent stamps an event with an ID and timestamp.
func newEvent(kind EventKind, candidateID string) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		CandidateID: candidateID,
		Timestamp:   time.Now(),
	}
}

// LogSink writes events to a structured logger. It is the Runner's default
// sink.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every event at Info (stops/starts) or
// Warn (verifier errors).
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit implements EventSink.
func (s *LogSink) Emit(event Event) {
	attrs := []any{
		slog.String("event", string(event.Kind)),
		slog.String("candidate_id", event.CandidateID),
	}
	if event.Verifier != "" {
		attrs = append(attrs, slog.String("verifier", event.Verifier))
	}
	if event.Score != nil {
		attrs = append(attrs, slog.Float64("score", *event.Score))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}

	if event.Kind == EventVerifierError {
		attrs = append(attrs, slog.String("error", event.Err))
		s.logger.Warn("verifier failed", attrs...)
		return
	}
	s.logger.Debug("verification event", attrs...)
}

// BufferSink collects events in memory. Useful for tests:
//
//	sink := verify.NewBufferSink()
//	runner, _ := verify.NewRunner(entries, verify.WithEventSink(sink))
//	...
//	events := sink.Events()
type BufferSink struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferSink creates an empty buffer sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{events: make([]Event, 0, 16)}
}

// Emit implements EventSink.
func (s *BufferSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all collected events.
func (s *BufferSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of all collected events in emission order.
func (s *BufferSink) Kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}
