// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generate adapts external inference backends to the search
// Generator contract.
package generate

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/crucible-ai/crucible/candidate"
	"github.com/crucible-ai/crucible/search"
)

// LangChain adapts any langchaingo model (Ollama, Anthropic, local
// llama.cpp, ...) to the Generator contract.
type LangChain struct {
	model     llms.Model
	modelName string
}

// NewLangChain wraps a langchaingo model. modelName is recorded on every
// produced candidate.
func NewLangChain(model llms.Model, modelName string) (*LangChain, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is nil", search.ErrInvalidConfig)
	}
	return &LangChain{model: model, modelName: modelName}, nil
}

// Generate implements search.Generator.
func (g *LangChain) Generate(ctx context.Context, prompt string, opts search.SamplingOptions) (*candidate.Candidate, error) {
	reply, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, callOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	return candidate.New(reply, candidate.WithModel(g.modelName)), nil
}

// callOptions translates sampling options to langchaingo call options.
// Zero values are omitted so the backend applies its own defaults.
func callOptions(opts search.SamplingOptions) []llms.CallOption {
	var callOpts []llms.CallOption
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(opts.StopWords))
	}
	return callOpts
}
