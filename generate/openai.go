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

	openai "github.com/sashabaranov/go-openai"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
)

// OpenAI adapts an OpenAI-compatible chat completion endpoint to the
// Generator contract. It also serves vLLM and other servers that speak the
// same wire protocol.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI wraps a go-openai client for the given model.
func NewOpenAI(client *openai.Client, model string) (*OpenAI, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", search.ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model name is empty", search.ErrInvalidConfig)
	}
	return &OpenAI{client: client, model: model}, nil
}

// Generate implements search.Generator.
func (g *OpenAI) Generate(ctx context.Context, prompt string, opts search.SamplingOptions) (*candidate.Candidate, error) {
	cands, err := g.complete(ctx, prompt, 1, opts)
	if err != nil {
		return nil, err
	}
	return cands[0], nil
}

// GenerateBatch implements search.BatchGenerator via the n parameter of the
// chat completion request: one round trip, n sampled choices.
func (g *OpenAI) GenerateBatch(ctx context.Context, prompt string, n int, opts search.SamplingOptions) ([]*candidate.Candidate, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: batch size %d, must be >= 1", search.ErrInvalidConfig, n)
	}
	return g.complete(ctx, prompt, n, opts)
}

func (g *OpenAI) complete(ctx context.Context, prompt string, n int, opts search.SamplingOptions) ([]*candidate.Candidate, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		N:     n,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.StopWords,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: response has no choices")
	}

	cands := make([]*candidate.Candidate, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		cands = append(cands, candidate.New(choice.Message.Content,
			candidate.WithModel(resp.Model),
			candidate.WithTokensUsed(resp.Usage.CompletionTokens),
		))
	}
	return cands, nil
}
