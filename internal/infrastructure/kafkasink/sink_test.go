package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
)

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) WriteMessage(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

type testEvent struct {
	OrderID string `json:"order_id"`
}

func (testEvent) EventName() string  { return "order.settled" }
func (e testEvent) EventKey() string { return e.OrderID }

type unkeyedEvent struct{}

func (unkeyedEvent) EventName() string { return "inventory.audit" }

type recordingSubscriber struct {
	name string
	h    domoutbox.Handler
}

func (r *recordingSubscriber) Subscribe(name string, h domoutbox.Handler) {
	r.name, r.h = name, h
}

func TestSinkHandleWritesKeyedMessage(t *testing.T) {
	t.Parallel()

	p := &fakeProducer{}
	s := NewSink(p, "minishop.events", nil)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Handle(context.Background(), testEvent{OrderID: "o-1"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(p.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(p.msgs))
	}
	msg := p.msgs[0]
	if string(msg.Key) != "o-1" {
		t.Fatalf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "order.settled" {
		t.Fatalf("headers = %+v", msg.Headers)
	}

	var body Message
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Event != "order.settled" || body.Key != "o-1" || !body.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected body: %+v", body)
	}
	var payload testEvent
	if err := json.Unmarshal(body.Payload, &payload); err != nil || payload.OrderID != "o-1" {
		t.Fatalf("payload = %s, %v", body.Payload, err)
	}
}

func TestSinkFallsBackToEventNameKey(t *testing.T) {
	t.Parallel()

	p := &fakeProducer{}
	s := NewSink(p, "minishop.events", nil)
	if err := s.Handle(context.Background(), unkeyedEvent{}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if string(p.msgs[0].Key) != "inventory.audit" {
		t.Fatalf("key = %q", p.msgs[0].Key)
	}
}

func TestSinkPropagatesWriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	s := NewSink(&fakeProducer{err: boom}, "minishop.events", nil)
	if err := s.Handle(context.Background(), testEvent{OrderID: "o-1"}); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestSinkRegisterAndClose(t *testing.T) {
	t.Parallel()

	p := &fakeProducer{}
	s := NewSink(p, "minishop.events", nil)
	sub := &recordingSubscriber{}
	s.Register(sub, "*")
	if sub.name != "*" || sub.h == nil {
		t.Fatalf("sink not registered: %+v", sub)
	}
	if err := s.Close(); err != nil || !p.closed {
		t.Fatalf("close = %v, closed=%v", err, p.closed)
	}
}

func TestNewWriterRequiresTopic(t *testing.T) {
	t.Parallel()

	if _, err := NewWriter(WriterConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatal("expected error without topic")
	}
}
