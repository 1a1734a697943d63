// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads search and verification configuration with
// priority: environment > file > defaults. Files may be YAML or JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crucible-ai/crucible/pkg/logging"
	"github.com/crucible-ai/crucible/search/beam"
	"github.com/crucible-ai/crucible/search/diverse"
	"github.com/crucible-ai/crucible/search/mcts"
	"github.com/crucible-ai/crucible/verify"
)

// Config is the top-level configuration for the search stack.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Verification configures the verifier runner.
	Verification VerificationConfig `json:"verification" yaml:"verification"`

	// Beam configures beam search.
	Beam BeamConfig `json:"beam" yaml:"beam"`

	// MCTS configures Monte-Carlo tree search.
	MCTS MCTSConfig `json:"mcts" yaml:"mcts"`

	// Diverse configures diverse decoding.
	Diverse DiverseConfig `json:"diverse" yaml:"diverse"`

	// Sampling configures default generation sampling.
	Sampling SamplingConfig `json:"sampling" yaml:"sampling"`

	// Logging configures structured log output.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level   string `json:"level" yaml:"level"`
	JSON    bool   `json:"json" yaml:"json"`
	LogDir  string `json:"log_dir" yaml:"log_dir"`
	Service string `json:"service" yaml:"service"`
}

// VerificationConfig contains verifier runner settings.
type VerificationConfig struct {
	Parallel       bool          `json:"parallel" yaml:"parallel"`
	Aggregation    string        `json:"aggregation" yaml:"aggregation"`
	OnError        string        `json:"on_error" yaml:"on_error"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MaxConcurrency int           `json:"max_concurrency" yaml:"max_concurrency"`
	BatchPoolSize  int           `json:"batch_pool_size" yaml:"batch_pool_size"`
	RateLimit      float64       `json:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `json:"rate_burst" yaml:"rate_burst"`
}

// BeamConfig contains beam search settings.
type BeamConfig struct {
	BeamWidth           int     `json:"beam_width" yaml:"beam_width"`
	Depth               int     `json:"depth" yaml:"depth"`
	BranchingFactor     int     `json:"branching_factor" yaml:"branching_factor"`
	NoImprovementWindow int     `json:"no_improvement_window" yaml:"no_improvement_window"`
	Epsilon             float64 `json:"epsilon" yaml:"epsilon"`
}

// MCTSConfig contains MCTS settings.
type MCTSConfig struct {
	Simulations         int     `json:"simulations" yaml:"simulations"`
	ExplorationConstant float64 `json:"exploration_constant" yaml:"exploration_constant"`
	MaxDepth            int     `json:"max_depth" yaml:"max_depth"`
	MaxChildren         int     `json:"max_children" yaml:"max_children"`
}

// DiverseConfig contains diverse decoding settings.
type DiverseConfig struct {
	NumCandidates      int       `json:"num_candidates" yaml:"num_candidates"`
	K                  int       `json:"k" yaml:"k"`
	Lambda             float64   `json:"lambda" yaml:"lambda"`
	DiversityThreshold float64   `json:"diversity_threshold" yaml:"diversity_threshold"`
	JaccardWeight      float64   `json:"jaccard_weight" yaml:"jaccard_weight"`
	EditWeight         float64   `json:"edit_weight" yaml:"edit_weight"`
	Temperatures       []float64 `json:"temperatures" yaml:"temperatures"`
}

// SamplingConfig contains default generation sampling settings.
type SamplingConfig struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Default returns the default configuration.
func Default() Config {
	beamDefaults := beam.DefaultConfig()
	mctsDefaults := mcts.DefaultConfig()
	diverseDefaults := diverse.DefaultConfig()

	return Config{
		Verification: VerificationConfig{
			Parallel:      false,
			Aggregation:   verify.AggregationWeightedAvg.String(),
			OnError:       verify.PolicyContinue.String(),
			Timeout:       verify.DefaultTimeout,
			BatchPoolSize: verify.DefaultBatchPoolSize,
		},
		Beam: BeamConfig{
			BeamWidth:       beamDefaults.BeamWidth,
			Depth:           beamDefaults.Depth,
			BranchingFactor: beamDefaults.BranchingFactor,
		},
		MCTS: MCTSConfig{
			Simulations:         mctsDefaults.Simulations,
			ExplorationConstant: mctsDefaults.ExplorationConstant,
			MaxDepth:            mctsDefaults.MaxDepth,
			MaxChildren:         mctsDefaults.MaxChildren,
		},
		Diverse: DiverseConfig{
			NumCandidates:      diverseDefaults.NumCandidates,
			K:                  diverseDefaults.K,
			Lambda:             diverseDefaults.Lambda,
			DiversityThreshold: diverseDefaults.DiversityThreshold,
			JaccardWeight:      diverseDefaults.JaccardWeight,
			EditWeight:         diverseDefaults.EditWeight,
		},
		Sampling: SamplingConfig{
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Service: "crucible",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: Path to a YAML or JSON config file. Empty or missing files
//     fall back to defaults silently.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if a present file is invalid or validation fails.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&config)

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON.
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(config *Config) {
	// Verification
	if v := os.Getenv("CRUCIBLE_VERIFY_PARALLEL"); v != "" {
		config.Verification.Parallel = v == "true" || v == "1"
	}
	if v := os.Getenv("CRUCIBLE_VERIFY_AGGREGATION"); v != "" {
		config.Verification.Aggregation = v
	}
	if v := os.Getenv("CRUCIBLE_VERIFY_ON_ERROR"); v != "" {
		config.Verification.OnError = v
	}
	if v := os.Getenv("CRUCIBLE_VERIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Verification.Timeout = d
		}
	}
	if v := os.Getenv("CRUCIBLE_VERIFY_MAX_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Verification.MaxConcurrency = i
		}
	}
	if v := os.Getenv("CRUCIBLE_VERIFY_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Verification.RateLimit = f
		}
	}

	// Beam
	if v := os.Getenv("CRUCIBLE_BEAM_WIDTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Beam.BeamWidth = i
		}
	}
	if v := os.Getenv("CRUCIBLE_BEAM_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Beam.Depth = i
		}
	}
	if v := os.Getenv("CRUCIBLE_BEAM_BRANCHING"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Beam.BranchingFactor = i
		}
	}

	// MCTS
	if v := os.Getenv("CRUCIBLE_MCTS_SIMULATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MCTS.Simulations = i
		}
	}
	if v := os.Getenv("CRUCIBLE_MCTS_EXPLORATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.MCTS.ExplorationConstant = f
		}
	}
	if v := os.Getenv("CRUCIBLE_MCTS_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MCTS.MaxDepth = i
		}
	}

	// Diverse
	if v := os.Getenv("CRUCIBLE_DIVERSE_CANDIDATES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Diverse.NumCandidates = i
		}
	}
	if v := os.Getenv("CRUCIBLE_DIVERSE_K"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Diverse.K = i
		}
	}
	if v := os.Getenv("CRUCIBLE_DIVERSE_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Diverse.Lambda = f
		}
	}

	// Logging
	if v := os.Getenv("CRUCIBLE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CRUCIBLE_LOG_DIR"); v != "" {
		config.Logging.LogDir = v
	}
	if v := os.Getenv("CRUCIBLE_LOG_JSON"); v != "" {
		config.Logging.JSON = v == "true" || v == "1"
	}

	// Sampling
	if v := os.Getenv("CRUCIBLE_SAMPLING_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Sampling.Temperature = f
		}
	}
	if v := os.Getenv("CRUCIBLE_SAMPLING_MAX_TOKENS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Sampling.MaxTokens = i
		}
	}
}

// Validate checks the whole configuration by delegating to the per-component
// validators so file and env mistakes surface before anything runs.
func (c Config) Validate() error {
	if _, err := verify.ParseAggregation(c.Verification.Aggregation); err != nil {
		return err
	}
	if _, err := verify.ParseErrorPolicy(c.Verification.OnError); err != nil {
		return err
	}
	if c.Verification.Timeout <= 0 {
		return fmt.Errorf("verification timeout must be > 0")
	}
	if err := c.ToBeamConfig().Validate(); err != nil {
		return err
	}
	if err := c.ToMCTSConfig().Validate(); err != nil {
		return err
	}
	if err := c.ToDiverseConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// RunnerOptions converts the verification section to runner options.
func (c Config) RunnerOptions() []verify.RunnerOption {
	aggregation, _ := verify.ParseAggregation(c.Verification.Aggregation)
	policy, _ := verify.ParseErrorPolicy(c.Verification.OnError)

	opts := []verify.RunnerOption{
		verify.WithParallel(c.Verification.Parallel),
		verify.WithAggregation(aggregation),
		verify.WithErrorPolicy(policy),
		verify.WithTimeout(c.Verification.Timeout),
	}
	if c.Verification.MaxConcurrency > 0 {
		opts = append(opts, verify.WithMaxConcurrency(c.Verification.MaxConcurrency))
	}
	if c.Verification.BatchPoolSize > 0 {
		opts = append(opts, verify.WithBatchPoolSize(c.Verification.BatchPoolSize))
	}
	if c.Verification.RateLimit > 0 && c.Verification.RateBurst > 0 {
		opts = append(opts, verify.WithRateLimit(c.Verification.RateLimit, c.Verification.RateBurst))
	}
	return opts
}

// BuildLogger constructs the logger described by the logging section.
func (c Config) BuildLogger() (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(c.Logging.Level),
		JSON:    c.Logging.JSON,
		LogDir:  c.Logging.LogDir,
		Service: c.Logging.Service,
	})
}

// ToBeamConfig converts the beam section to the algorithm config.
func (c Config) ToBeamConfig() beam.Config {
	return beam.Config{
		BeamWidth:           c.Beam.BeamWidth,
		Depth:               c.Beam.Depth,
		BranchingFactor:     c.Beam.BranchingFactor,
		NoImprovementWindow: c.Beam.NoImprovementWindow,
		Epsilon:             c.Beam.Epsilon,
	}
}

// ToMCTSConfig converts the MCTS section to the algorithm config.
func (c Config) ToMCTSConfig() mcts.Config {
	return mcts.Config{
		Simulations:         c.MCTS.Simulations,
		ExplorationConstant: c.MCTS.ExplorationConstant,
		MaxDepth:            c.MCTS.MaxDepth,
		MaxChildren:         c.MCTS.MaxChildren,
	}
}

// ToDiverseConfig converts the diverse section to the algorithm config.
func (c Config) ToDiverseConfig() diverse.Config {
	return diverse.Config{
		NumCandidates:      c.Diverse.NumCandidates,
		K:                  c.Diverse.K,
		Lambda:             c.Diverse.Lambda,
		DiversityThreshold: c.Diverse.DiversityThreshold,
		JaccardWeight:      c.Diverse.JaccardWeight,
		EditWeight:         c.Diverse.EditWeight,
		Temperatures:       c.Diverse.Temperatures,
	}
}
