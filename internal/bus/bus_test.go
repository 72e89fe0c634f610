package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-health/triage/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if string(msg.Payload) != "hello" {
				t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
			}
			if msg.Topic != "test.topic" {
				t.Errorf("expected topic 'test.topic', got '%s'", msg.Topic)
			}
			if msg.ID == "" {
				t.Error("expected message id")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var a, b atomic.Int32

		bus.Subscribe(ctx, "iso.a", func(ctx context.Context, msg *domain.Message) error {
			a.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "iso.b", func(ctx context.Context, msg *domain.Message) error {
			b.Add(1)
			return nil
		})

		bus.Publish(ctx, "iso.a", []byte("msg"))

		waitFor(t, func() bool { return a.Load() == 1 })
		time.Sleep(20 * time.Millisecond)
		if b.Load() != 0 {
			t.Errorf("iso.b should receive 0 messages, got %d", b.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		waitFor(t, func() bool { return count.Load() == 1 })

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(20 * time.Millisecond)
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count atomic.Int32
		handler := func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		}

		bus.Subscribe(ctx, "multi.topic", handler)
		bus.Subscribe(ctx, "multi.topic", handler)

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		waitFor(t, func() bool { return count.Load() == 2 })
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestPublishJSON(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()
	received := make(chan domain.DetectionEvent, 1)

	bus.Subscribe(ctx, domain.TopicDetectionRecorded, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.DetectionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		received <- ev
		return nil
	})

	err := PublishJSON(ctx, bus, domain.TopicDetectionRecorded, domain.DetectionEvent{
		BatchID:  "batch-1",
		Diseases: []string{"flu", "diare"},
	})
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	select {
	case ev := <-received:
		if ev.BatchID != "batch-1" || len(ev.Diseases) != 2 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := bus.Subscribe(ctx, "close.topic", nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error on closed bus")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})

	bus.Subscribe(ctx, "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(ctx, "slow.topic", []byte("msg"))
	}
	close(release)

	if bus.Dropped() == 0 {
		t.Error("expected some deliveries to be dropped")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestNATSDefaults(t *testing.T) {
	cfg := withNATSDefaults(domain.EventBusConfig{})
	if cfg.NATSUrl == "" || cfg.NATSMaxReconnects != 10 || cfg.NATSReconnectWait != 5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	if got := makeSubject(domain.TopicDetectionRecorded); got != "triage.detection.recorded" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestNATSMessageHeaders(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		in := &domain.Message{
			ID:        "msg-1",
			Topic:     domain.TopicDetectionRecorded,
			Payload:   []byte(`{"batchId":"b1","diseases":["flu"]}`),
			Metadata:  map[string]string{"Source": "api"},
			Timestamp: 1700000000000000000,
		}

		m := toNATSMsg(in)
		if m.Subject != "triage.detection.recorded" {
			t.Errorf("unexpected subject %q", m.Subject)
		}
		if string(m.Data) != string(in.Payload) {
			t.Errorf("expected raw payload as body, got %s", m.Data)
		}

		out := fromNATSMsg(domain.TopicDetectionRecorded, m)
		if out.ID != in.ID || out.Timestamp != in.Timestamp || out.Topic != in.Topic {
			t.Errorf("unexpected message: %+v", out)
		}
		if out.Metadata["Source"] != "api" {
			t.Errorf("expected metadata to survive, got %v", out.Metadata)
		}
	})

	t.Run("ForeignPublisher", func(t *testing.T) {
		m := &nats.Msg{Subject: "triage.detection.recorded", Data: []byte("{}")}

		out := fromNATSMsg(domain.TopicDetectionRecorded, m)
		if out.ID == "" {
			t.Error("expected generated id")
		}
		if out.Timestamp == 0 {
			t.Error("expected timestamp")
		}
		if string(out.Payload) != "{}" {
			t.Errorf("unexpected payload %s", out.Payload)
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(10000)
	defer bus.Close()

	ctx := context.Background()
	var count atomic.Int64

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})

	for i := 0; i < 5000; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	waitFor(t, func() bool { return count.Load() == 5000 })
}
