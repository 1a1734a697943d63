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
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/crucible-ai/crucible/candidate"
)

const (
	// DefaultTimeout bounds each verification run (shared across the whole
	// parallel batch, applied per call when sequential).
	DefaultTimeout = 30 * time.Second

	// DefaultBatchPoolSize bounds candidate fan-out in VerifyAll.
	DefaultBatchPoolSize = 8
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Parallel invokes all verifiers for a candidate concurrently, joined
	// under one shared timeout. Sequential runs apply the timeout per call.
	Parallel bool

	// Aggregation folds surviving scores. Default: AggregationWeightedAvg.
	Aggregation Aggregation

	// OnError selects the partial-failure policy. Default: PolicyContinue.
	OnError ErrorPolicy

	// Timeout bounds verifier calls. Default: DefaultTimeout.
	Timeout time.Duration

	// MaxConcurrency bounds the per-candidate verifier fan-out when
	// Parallel is set. 0 means one worker per verifier.
	MaxConcurrency int

	// BatchPoolSize bounds concurrent candidates in VerifyAll.
	// Default: DefaultBatchPoolSize.
	BatchPoolSize int
}

// Runner executes a weighted verifier ensemble against candidates and
// produces one aggregated VerificationResult per candidate.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	entries []WeightedVerifier
	config  RunnerConfig
	limiter *rate.Limiter
	sink    EventSink
	logger  *slog.Logger
}

// RunnerOption configures a Runner during construction.
type RunnerOption func(*Runner)

// WithParallel toggles concurrent verifier invocation.
func WithParallel(parallel bool) RunnerOption {
	return func(r *Runner) {
		r.config.Parallel = parallel
	}
}

// WithAggregation sets the score aggregation strategy.
func WithAggregation(a Aggregation) RunnerOption {
	return func(r *Runner) {
		r.config.Aggregation = a
	}
}

// WithErrorPolicy sets the partial-failure policy.
func WithErrorPolicy(p ErrorPolicy) RunnerOption {
	return func(r *Runner) {
		r.config.OnError = p
	}
}

// WithTimeout sets the verification timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.config.Timeout = d
		}
	}
}

// WithMaxConcurrency bounds the parallel verifier fan-out per candidate.
func WithMaxConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.config.MaxConcurrency = n
		}
	}
}

// WithBatchPoolSize bounds concurrent candidates in VerifyAll.
func WithBatchPoolSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.config.BatchPoolSize = n
		}
	}
}

// WithRateLimit throttles verifier invocations across the whole runner.
// Verifier implementations are external services; the runner never assumes
// they tolerate unbounded call rates.
func WithRateLimit(callsPerSecond float64, burst int) RunnerOption {
	return func(r *Runner) {
		if callsPerSecond > 0 && burst > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst)
		}
	}
}

// WithEventSink sets the destination for runner events.
func WithEventSink(sink EventSink) RunnerOption {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a verification runner.
//
// Inputs:
//   - entries: The verifier ensemble. Must be non-empty, every verifier
//     non-nil, every weight > 0.
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *Runner: Ready to use runner.
//   - error: Wrapped ErrInvalidConfig on bad parameters.
func NewRunner(entries []WeightedVerifier, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		entries: entries,
		config: RunnerConfig{
			Aggregation:   AggregationWeightedAvg,
			OnError:       PolicyContinue,
			Timeout:       DefaultTimeout,
			BatchPoolSize: DefaultBatchPoolSize,
		},
		sink:   NewLogSink(slog.Default()),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: verifier list is empty", ErrInvalidConfig)
	}
	for i, entry := range entries {
		if entry.Verifier == nil {
			return nil, fmt.Errorf("%w: verifier %d is nil", ErrInvalidConfig, i)
		}
		if entry.Weight <= 0 {
			return nil, fmt.Errorf("%w: verifier %q has weight %v, must be > 0",
				ErrInvalidConfig, entry.Verifier.Name(), entry.Weight)
		}
	}
	if !r.config.Aggregation.Valid() {
		return nil, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidConfig, r.config.Aggregation)
	}
	if !r.config.OnError.Valid() {
		return nil, fmt.Errorf("%w: unknown error policy %q", ErrInvalidConfig, r.config.OnError)
	}

	return r, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() RunnerConfig {
	return r.config
}

// outcome is the recorded result of one verifier invocation.
type outcome struct {
	name    string
	weight  float64
	result  *candidate.VerificationResult
	err     error
	elapsed time.Duration
}

// VerifyCandidate runs the full ensemble against one candidate.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - cand: The candidate to score.
//   - vctx: Open context bag passed through to every verifier.
//
// Outputs:
//   - *candidate.VerificationResult: Aggregated result. Its metadata records
//     per-verifier raw scores, failed verifier names, and run duration.
//   - error: ErrAllVerifiersFailed if no verifier scored; the first failure
//     when OnError is PolicyHalt.
func (r *Runner) VerifyCandidate(ctx context.Context, cand *candidate.Candidate, vctx Context) (*candidate.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "verify.Runner.VerifyCandidate",
		trace.WithAttributes(
			attribute.String("candidate_id", cand.ID),
			attribute.Int("verifiers", len(r.entries)),
			attribute.Bool("parallel", r.config.Parallel),
		),
	)
	defer span.End()

	r.sink.Emit(newEvent(EventVerifyStart, cand.ID))
	start := time.Now()

	var outcomes []outcome
	var err error
	if r.config.Parallel {
		outcomes, err = r.runParallel(ctx, cand, vctx)
	} else {
		outcomes, err = r.runSequential(ctx, cand, vctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification halted")
		return nil, err
	}

	result, err := r.buildAggregated(cand, outcomes, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "all verifiers failed")
		return nil, err
	}

	stop := newEvent(EventVerifyStop, cand.ID)
	stop.Score = result.Score
	stop.Duration = time.Since(start)
	r.sink.Emit(stop)
	recordVerification(ctx, r.config.Aggregation, *result.Score, stop.Duration)
	span.SetAttributes(attribute.Float64("score", *result.Score))

	return result, nil
}

// runParallel fans the ensemble out across workers under one shared timeout.
func (r *Runner) runParallel(ctx context.Context, cand *candidate.Candidate, vctx Context) ([]outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	outcomes := make([]outcome, len(r.entries))

	g, gctx := errgroup.WithContext(runCtx)
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}

	for i, entry := range r.entries {
		g.Go(func() error {
			out := r.invoke(gctx, entry, cand, vctx)
			outcomes[i] = out
			if out.err != nil && r.config.OnError == PolicyHalt {
				return out.err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runSequential invokes verifiers one at a time, each under its own timeout.
func (r *Runner) runSequential(ctx context.Context, cand *candidate.Candidate, vctx Context) ([]outcome, error) {
	outcomes := make([]outcome, 0, len(r.entries))

	for _, entry := range r.entries {
		callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		out := r.invoke(callCtx, entry, cand, vctx)
		cancel()

		outcomes = append(outcomes, out)
		if out.err != nil && r.config.OnError == PolicyHalt {
			return nil, out.err
		}
	}

	return outcomes, nil
}

// invoke runs one verifier and validates its result. Failures are recorded
// as events and metrics here so both execution paths observe them uniformly.
func (r *Runner) invoke(ctx context.Context, entry WeightedVerifier, cand *candidate.Candidate, vctx Context) outcome {
	out := outcome{name: entry.Verifier.Name(), weight: entry.Weight}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			out.err = r.failure(ctx, entry, cand.ID, err)
			return out
		}
	}

	ctx, span := tracer.Start(ctx, "verify.Verifier.Verify",
		trace.WithAttributes(attribute.String("verifier", out.name)),
	)
	defer span.End()

	start := time.Now()
	result, err := entry.Verifier.Verify(ctx, cand, vctx)
	out.elapsed = time.Since(start)

	switch {
	case err != nil:
		out.err = r.failure(ctx, entry, cand.ID, err)
	case result == nil || result.Score == nil:
		out.err = r.failure(ctx, entry, cand.ID, ErrNoScore)
	default:
		out.result = result
	}
	if out.err != nil {
		span.RecordError(out.err)
	}

	return out
}

// failure wraps, records, and emits a single verifier failure.
func (r *Runner) failure(ctx context.Context, entry WeightedVerifier, candidateID string, cause error) error {
	err := &VerifierError{
		Verifier:    entry.Verifier.Name(),
		CandidateID: candidateID,
		Err:         cause,
	}

	ev := newEvent(EventVerifierError, candidateID)
	ev.Verifier = entry.Verifier.Name()
	ev.Err = cause.Error()
	r.sink.Emit(ev)
	recordVerifierFailure(ctx, entry.Verifier.Name())

	return err
}

// buildAggregated folds surviving outcomes into one synthetic result.
func (r *Runner) buildAggregated(cand *candidate.Candidate, outcomes []outcome, elapsed time.Duration) (*candidate.VerificationResult, error) {
	var (
		scores      []float64
		weights     []float64
		confidences []float64
		rawScores   = make(map[string]float64)
		failed      []string
		stepScores  map[string]float64
	)

	for _, out := range outcomes {
		if out.err != nil || out.result == nil {
			failed = append(failed, out.name)
			continue
		}
		score := *out.result.Score
		scores = append(scores, score)
		weights = append(weights, out.weight)
		rawScores[out.name] = score
		if out.result.Confidence != nil {
			confidences = append(confidences, *out.result.Confidence)
		}
		if out.result.StepScores != nil {
			stepScores = candidate.MergeStepScores(stepScores, out.result.StepScores)
		}
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("candidate %s: %w", cand.ID, ErrAllVerifiersFailed)
	}

	score := aggregate(r.config.Aggregation, scores, weights)

	result := &candidate.VerificationResult{
		CandidateID: cand.ID,
		Score:       &score,
		StepScores:  stepScores,
		Metadata: map[string]any{
			"verifier_scores": rawScores,
			"aggregation":     string(r.config.Aggregation),
			"duration_ms":     elapsed.Milliseconds(),
		},
	}
	if len(failed) > 0 {
		result.Metadata["failed_verifiers"] = failed
	}
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		mean := sum / float64(len(confidences))
		result.Confidence = &mean
	}

	return result, nil
}

// VerifyAll scores every candidate. Output order matches input order
// regardless of completion order. A failure on one candidate leaves a nil
// slot and does not abort the others; the call errors only when every
// candidate failed to score.
//
// When every configured verifier implements BatchVerifier, each verifier is
// invoked once over the whole batch instead of once per candidate.
func (r *Runner) VerifyAll(ctx context.Context, cands []*candidate.Candidate, vctx Context) ([]*candidate.VerificationResult, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "verify.Runner.VerifyAll",
		trace.WithAttributes(attribute.Int("candidates", len(cands))),
	)
	defer span.End()

	if r.allBatchCapable() {
		return r.verifyAllBatched(ctx, cands, vctx)
	}

	results := make([]*candidate.VerificationResult, len(cands))
	errs := make([]error, len(cands))

	pool, err := ants.NewPool(r.config.BatchPoolSize)
	if err != nil {
		return nil, fmt.Errorf("verify: create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, cand := range cands {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i], errs[i] = r.VerifyCandidate(ctx, cand, vctx)
		}
		if submitErr := pool.Submit(task); submitErr != nil {
			// Pool saturation or shutdown: run inline rather than drop.
			task()
		}
	}
	wg.Wait()

	return r.collectBatch(results, errs)
}

// allBatchCapable reports whether every verifier supports batch invocation.
func (r *Runner) allBatchCapable() bool {
	for _, entry := range r.entries {
		if _, ok := entry.Verifier.(BatchVerifier); !ok {
			return false
		}
	}
	return true
}

// verifyAllBatched calls each verifier's VerifyBatch once over the full
// candidate list, then aggregates per candidate. The timeout discipline
// matches the per-candidate path: one shared timeout across the batch when
// parallel, an individual timeout per VerifyBatch call when sequential.
func (r *Runner) verifyAllBatched(ctx context.Context, cands []*candidate.Candidate, vctx Context) ([]*candidate.VerificationResult, error) {
	start := time.Now()
	for _, cand := range cands {
		r.sink.Emit(newEvent(EventVerifyStart, cand.ID))
	}

	// One result row per verifier, aligned with cands.
	rows := make([][]*candidate.VerificationResult, len(r.entries))
	rowErrs := make([]error, len(r.entries))

	if r.config.Parallel {
		runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()

		g, gctx := errgroup.WithContext(runCtx)
		if r.config.MaxConcurrency > 0 {
			g.SetLimit(r.config.MaxConcurrency)
		}
		for i, entry := range r.entries {
			g.Go(func() error {
				rows[i], rowErrs[i] = r.invokeBatch(gctx, entry, cands, vctx)
				if rowErrs[i] != nil && r.config.OnError == PolicyHalt {
					return rowErrs[i]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, entry := range r.entries {
			callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
			rows[i], rowErrs[i] = r.invokeBatch(callCtx, entry, cands, vctx)
			cancel()
			if rowErrs[i] != nil && r.config.OnError == PolicyHalt {
				return nil, rowErrs[i]
			}
		}
	}

	elapsed := time.Since(start)
	results := make([]*candidate.VerificationResult, len(cands))
	errs := make([]error, len(cands))

	for ci, cand := range cands {
		outcomes := make([]outcome, len(r.entries))
		for vi, entry := range r.entries {
			out := outcome{name: entry.Verifier.Name(), weight: entry.Weight}
			switch {
			case rowErrs[vi] != nil:
				out.err = rowErrs[vi]
			case rows[vi][ci] == nil || rows[vi][ci].Score == nil:
				out.err = r.failure(ctx, entry, cand.ID, ErrNoScore)
			default:
				out.result = rows[vi][ci]
			}
			outcomes[vi] = out
		}
		results[ci], errs[ci] = r.buildAggregated(cand, outcomes, elapsed)
		if errs[ci] == nil {
			stop := newEvent(EventVerifyStop, cand.ID)
			stop.Score = results[ci].Score
			stop.Duration = elapsed
			r.sink.Emit(stop)
			recordVerification(ctx, r.config.Aggregation, *results[ci].Score, elapsed)
		}
	}

	return r.collectBatch(results, errs)
}

// invokeBatch runs one verifier's VerifyBatch under the given context and
// validates the returned row.
func (r *Runner) invokeBatch(ctx context.Context, entry WeightedVerifier, cands []*candidate.Candidate, vctx Context) ([]*candidate.VerificationResult, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.failure(ctx, entry, "", err)
		}
	}
	batch := entry.Verifier.(BatchVerifier)
	row, err := batch.VerifyBatch(ctx, cands, vctx)
	if err == nil && len(row) != len(cands) {
		err = fmt.Errorf("verify: %q returned %d results for %d candidates",
			entry.Verifier.Name(), len(row), len(cands))
	}
	if err != nil {
		return nil, r.failure(ctx, entry, "", err)
	}
	return row, nil
}

// collectBatch applies the "one failure never aborts the batch" contract:
// failed slots stay nil, and the call errors only when nothing scored.
func (r *Runner) collectBatch(results []*candidate.VerificationResult, errs []error) ([]*candidate.VerificationResult, error) {
	scored := 0
	for i, res := range results {
		if res != nil {
			scored++
			continue
		}
		if errs[i] != nil {
			r.logger.Warn("candidate dropped from batch",
				slog.Int("index", i),
				slog.String("error", errs[i].Error()))
		}
	}
	if scored == 0 {
		return nil, fmt.Errorf("verify: no candidate in batch of %d could be scored: %w",
			len(results), ErrAllVerifiersFailed)
	}
	return results, nil
}
