// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/crucible-ai/crucible/candidate"
)

// ContextKeyPrompt is the verification-context key carrying the original
// task prompt shown to the judge.
const ContextKeyPrompt = "prompt"

const judgeTemplate = `You are grading a candidate answer to a task.

Task:
%s

Candidate answer:
%s

Rate the candidate's quality as a single number between 0.0 (useless) and
1.0 (perfect). Reply with the number first, optionally followed by a one
sentence justification.`

// scorePattern extracts the leading numeric grade from a judge reply.
var scorePattern = regexp.MustCompile(`[01](?:\.\d+)?|\.\d+`)

// LLMJudge scores candidates by asking a language model to grade them.
// It is the generic fallback verifier for tasks with no programmatic check.
type LLMJudge struct {
	name        string
	model       llms.Model
	temperature float64
}

// NewLLMJudge creates a judge backed by the given model.
func NewLLMJudge(name string, model llms.Model) (*LLMJudge, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: judge model is nil", ErrInvalidConfig)
	}
	if name == "" {
		name = "llm_judge"
	}
	return &LLMJudge{name: name, model: model}, nil
}

// Name implements Verifier.
func (j *LLMJudge) Name() string {
	return j.name
}

// Verify implements Verifier.
//
// Inputs:
//   - ctx: Context for cancellation and deadlines.
//   - cand: The candidate to grade.
//   - vctx: ContextKeyPrompt supplies the task the candidate answered.
//
// Outputs:
//   - *candidate.VerificationResult: Score parsed from the judge reply,
//     with the full reply preserved as reasoning.
//   - error: Model call failure, or an unparseable reply.
func (j *LLMJudge) Verify(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error) {
	task := "(no task description provided)"
	if vctx != nil {
		if s, ok := vctx[ContextKeyPrompt].(string); ok && s != "" {
			task = s
		}
	}

	prompt := fmt.Sprintf(judgeTemplate, task, cand.Content)
	reply, err := llms.GenerateFromSinglePrompt(ctx, j.model, prompt,
		llms.WithTemperature(j.temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("judge %q: %w", j.name, err)
	}

	score, err := parseJudgeScore(reply)
	if err != nil {
		return nil, fmt.Errorf("judge %q: %w", j.name, err)
	}

	result := candidate.NewResult(cand.ID, score)
	result.Reasoning = strings.TrimSpace(reply)
	return result, nil
}

// parseJudgeScore pulls the grade out of a free-form judge reply. Grades
// outside [0, 1] are clamped; models occasionally reply "1.00" or pad with
// markdown, so the parse is lenient about surroundings but strict about the
// number itself.
func parseJudgeScore(reply string) (float64, error) {
	match := scorePattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in judge reply %q", truncate(reply, 120))
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse judge score %q: %w", match, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
