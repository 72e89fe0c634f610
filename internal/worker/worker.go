// Package worker maintains the live disease tally from detection events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-health/triage/internal/domain"
)

// Tally counts detections incrementally as batches are recorded. Counts
// start at zero when the process starts and lag the store slightly, so the
// aggregation engine stays the source of truth.
type Tally struct {
	bus domain.EventBus

	mu       sync.RWMutex
	counts   map[string]int64
	total    int64
	batches  int64
	started  time.Time
	lastSeen time.Time

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewTally creates a tally worker fed by bus.
func NewTally(bus domain.EventBus) *Tally {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tally{
		bus:     bus,
		counts:  make(map[string]int64),
		started: time.Now().UTC(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to detection events.
func (w *Tally) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicDetectionRecorded, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicDetectionRecorded, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tally worker started",
		"topic", domain.TopicDetectionRecorded,
	)
	return nil
}

func (w *Tally) handleMessage(ctx context.Context, msg *domain.Message) error {
	var ev domain.DetectionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse detection event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.Record(ev)

	slog.Debug("detection event tallied",
		"batch_id", ev.BatchID,
		"diseases", len(ev.Diseases),
	)
	return nil
}

// Record adds one batch worth of diseases to the tally.
func (w *Tally) Record(ev domain.DetectionEvent) {
	if len(ev.Diseases) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, d := range ev.Diseases {
		w.counts[strings.ToLower(strings.TrimSpace(d))]++
		w.total++
	}
	w.batches++
	w.lastSeen = time.Now().UTC()
}

// Stop unsubscribes from the bus.
func (w *Tally) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("tally worker stopped")
	return nil
}

// Snapshot is a point-in-time copy of the live tally.
type Snapshot struct {
	TotalCount          int64              `json:"totalCount"`
	BatchCount          int64              `json:"batchCount"`
	Counts              map[string]int64   `json:"counts"`
	PercentageByDisease map[string]float64 `json:"persentasePenyakit"`
	Since               time.Time          `json:"since"`
	LastEventAt         *time.Time         `json:"lastEventAt,omitempty"`
}

// Snapshot returns the current counts and percentages.
func (w *Tally) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{
		TotalCount:          w.total,
		BatchCount:          w.batches,
		Counts:              make(map[string]int64, len(w.counts)),
		PercentageByDisease: make(map[string]float64, len(w.counts)),
		Since:               w.started,
	}
	for d, n := range w.counts {
		s.Counts[d] = n
		s.PercentageByDisease[d] = float64(n) / float64(w.total) * 100
	}
	if !w.lastSeen.IsZero() {
		last := w.lastSeen
		s.LastEventAt = &last
	}
	return s
}

// Stats describes the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Tally) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
