// Package stats computes disease-frequency aggregates over the detection store.
// Every call rescans the store; nothing is cached between calls.
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-health/triage/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("triage-stats")

// Engine aggregates detection records. Disease names are compared
// case-insensitively and reported lower-cased.
type Engine struct {
	store domain.DetectionStore
}

// NewEngine creates an aggregation engine reading from store.
func NewEngine(store domain.DetectionStore) *Engine {
	return &Engine{store: store}
}

// ComputeOverallPercentages returns the share of every detected disease.
// Percentages are unrounded and sum to 100. An empty store yields ErrNoData.
func (e *Engine) ComputeOverallPercentages(ctx context.Context) (domain.AggregateStats, error) {
	counts, total, err := e.count(ctx)
	if err != nil {
		return domain.AggregateStats{}, err
	}
	if total == 0 {
		return domain.AggregateStats{}, domain.ErrNoData
	}

	percentages := make(map[string]float64, len(counts))
	for disease, n := range counts {
		percentages[disease] = float64(n) / float64(total) * 100
	}

	return domain.AggregateStats{
		TotalCount:          total,
		PercentageByDisease: percentages,
	}, nil
}

// ComputePercentageFor returns the share of one disease formatted with two
// decimals. An empty store or an unknown disease yields "0.00".
func (e *Engine) ComputePercentageFor(ctx context.Context, disease string) (domain.DiseasePercentage, error) {
	name := normalize(disease)

	counts, total, err := e.count(ctx)
	if err != nil {
		return domain.DiseasePercentage{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = float64(counts[name]) / float64(total) * 100
	}

	return domain.DiseasePercentage{
		Disease:    name,
		Percentage: FormatPercentage(pct),
	}, nil
}

// Counts returns the raw per-disease record counts and their total.
func (e *Engine) Counts(ctx context.Context) (map[string]int, int, error) {
	return e.count(ctx)
}

func (e *Engine) count(ctx context.Context) (map[string]int, int, error) {
	ctx, span := tracer.Start(ctx, "stats.ReadAll")
	defer span.End()

	batches, err := e.store.ReadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return nil, 0, err
	}

	counts := make(map[string]int)
	total := 0
	for _, b := range batches {
		for _, r := range b.Records {
			counts[normalize(r.Disease)]++
			total++
		}
	}

	span.SetAttributes(
		attribute.Int("stats.batches", len(batches)),
		attribute.Int("stats.records", total),
		attribute.Int("stats.diseases", len(counts)),
	)

	return counts, total, nil
}

// FormatPercentage renders p with exactly two decimals.
func FormatPercentage(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func normalize(disease string) string {
	return strings.ToLower(strings.TrimSpace(disease))
}
