// Package triage runs the detection pipeline: detect, build, persist, announce.
package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-health/triage/internal/bus"
	"github.com/opensource-health/triage/internal/domain"
	"github.com/opensource-health/triage/internal/lexicon"
	"github.com/opensource-health/triage/internal/summary"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("triage-pipeline")

// Result is the outcome of processing one input text. BatchID is empty
// when nothing was detected and therefore nothing was stored.
type Result struct {
	BatchID string          `json:"batchId,omitempty"`
	Summary summary.Summary `json:"summary"`
}

// Service wires the lexicon, result builder, store and event bus.
type Service struct {
	lexicons *lexicon.Registry
	builder  *summary.Builder
	store    domain.DetectionStore
	cache    domain.Cache
	bus      domain.EventBus
	memoTTL  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCache memoises detection results for ttl. A nil cache or zero ttl
// disables memoisation.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.memoTTL = ttl
	}
}

// WithBus announces every stored batch on bus.
func WithBus(b domain.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithBuilder replaces the default summary builder.
func WithBuilder(b *summary.Builder) Option {
	return func(s *Service) { s.builder = b }
}

// NewService creates the pipeline.
func NewService(lexicons *lexicon.Registry, store domain.DetectionStore, opts ...Option) *Service {
	s := &Service{
		lexicons: lexicons,
		builder:  summary.NewBuilder(),
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect classifies text without persisting anything.
func (s *Service) Detect(ctx context.Context, text string) summary.Summary {
	return s.builder.Build(s.detect(ctx, text))
}

// Process classifies text and, if anything matched, appends the records
// as one batch. A store failure is returned as ErrStoreUnavailable and
// nothing is announced.
func (s *Service) Process(ctx context.Context, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "triage.Process")
	defer span.End()

	start := time.Now()
	sum := s.builder.Build(s.detect(ctx, text))
	span.SetAttributes(attribute.Int("triage.matches", len(sum.Records)))

	if sum.Empty() {
		slog.Debug("no disease detected", "input_len", len(text))
		return Result{Summary: sum}, nil
	}

	batchID, err := s.store.AppendBatch(ctx, sum.Records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("triage.batch_id", batchID))

	s.announce(ctx, batchID, sum.Records)

	slog.Info("detection recorded",
		"batch_id", batchID,
		"diseases", len(sum.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Result{BatchID: batchID, Summary: sum}, nil
}

func (s *Service) detect(ctx context.Context, text string) []domain.DetectionMatch {
	lex := s.lexicons.Current()
	if s.cache == nil || s.memoTTL <= 0 {
		return lex.Detect(text)
	}

	key := memoKey(lex.Version(), text)
	if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
		var matches []domain.DetectionMatch
		if err := json.Unmarshal(data, &matches); err == nil {
			return matches
		}
	} else if err != nil {
		slog.Warn("detection cache read failed", "error", err)
	}

	matches := lex.Detect(text)
	if data, err := json.Marshal(matches); err == nil {
		if err := s.cache.Set(ctx, key, data, s.memoTTL); err != nil {
			slog.Warn("detection cache write failed", "error", err)
		}
	}
	return matches
}

// announce is best effort: the batch is already durable.
func (s *Service) announce(ctx context.Context, batchID string, records []domain.DetectionRecord) {
	if s.bus == nil {
		return
	}

	diseases := make([]string, len(records))
	for i, r := range records {
		diseases[i] = r.Disease
	}

	ev := domain.DetectionEvent{BatchID: batchID, Diseases: diseases}
	if err := bus.PublishJSON(ctx, s.bus, domain.TopicDetectionRecorded, ev); err != nil {
		slog.Warn("failed to publish detection event",
			"batch_id", batchID,
			"error", err,
		)
	}
}

func memoKey(version, text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(text)))
	return "detect:" + version + ":" + hex.EncodeToString(sum[:16])
}
