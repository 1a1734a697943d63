// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for verification operations.
var (
	tracer = otel.Tracer("crucible.verify")
	meter  = otel.Meter("crucible.verify")
)

// Metrics for verification runs.
var (
	verificationsTotal   metric.Int64Counter
	verifierFailures     metric.Int64Counter
	verificationDuration metric.Float64Histogram
	aggregateScores      metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics lazily registers instruments against the global meter.
func initMetrics() error {
	metricsOnce.Do(func() {
		verificationsTotal, metricsErr = meter.Int64Counter(
			"crucible_verifications_total",
			metric.WithDescription("Completed candidate verification runs"),
		)
		if metricsErr != nil {
			return
		}

		verifierFailures, metricsErr = meter.Int64Counter(
			"crucible_verifier_failures_total",
			metric.WithDescription("Individual verifier failures"),
		)
		if metricsErr != nil {
			return
		}

		verificationDuration, metricsErr = meter.Float64Histogram(
			"crucible_verification_duration_seconds",
			metric.WithDescription("Wall-clock duration of candidate verification runs"),
			metric.WithUnit("s"),
		)
		if metricsErr != nil {
			return
		}

		aggregateScores, metricsErr = meter.Float64Histogram(
			"crucible_aggregate_score",
			metric.WithDescription("Aggregated candidate scores"),
		)
	})
	return metricsErr
}

// recordVerification records one completed run.
func recordVerification(ctx context.Context, strategy Aggregation, score float64, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("aggregation", string(strategy)))
	verificationsTotal.Add(ctx, 1, attrs)
	verificationDuration.Record(ctx, elapsed.Seconds(), attrs)
	aggregateScores.Record(ctx, score, attrs)
}

// recordVerifierFailure records one failed verifier invocation.
func recordVerifierFailure(ctx context.Context, verifier string) {
	if initMetrics() != nil {
		return
	}
	verifierFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("verifier", verifier)))
}
