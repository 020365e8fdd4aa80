package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	peerKafka      = "kafka"
	headerEvent    = "event"
	publishTimeout = 5 * time.Second
)

// Producer is the part of the instrumented kafka writer the sink needs.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// WriterConfig describes the topic the sink writes to.
type WriterConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewWriter builds a kafka writer wrapped with producer spans and trace header injection.
func NewWriter(cfg WriterConfig, tp trace.TracerProvider) (Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	base := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(cfg.Topic),
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: instrument writer: %w", err)
	}
	return w, nil
}

// Message is the JSON body written for every domain event.
type Message struct {
	Event      string          `json:"event"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"published_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Sink forwards domain events from the in-process bus to a kafka topic.
type Sink struct {
	producer     Producer
	topic        string
	now          func() time.Time
	log          observability.Logger
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewSink(producer Producer, topic string, tel observability.Observability) *Sink {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Sink{
		producer:     producer,
		topic:        topic,
		now:          func() time.Time { return time.Now().UTC() },
		log:          tel.Logger().With(observability.F("component", "kafka_sink")),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Register subscribes the sink to every event on the bus.
func (s *Sink) Register(sub domoutbox.Subscriber, allEvents string) {
	sub.Subscribe(allEvents, s.Handle)
}

// Handle writes one event. The error goes back to the bus, which logs it.
func (s *Sink) Handle(ctx context.Context, e domoutbox.Event) error {
	logger := logctx.FromOr(ctx, s.log)

	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("kafka_encode_failed", observability.F("event", e.EventName()), observability.F("error", err))
		return fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	key := domoutbox.Key(e)
	body, err := json.Marshal(Message{
		Event:      e.EventName(),
		Key:        key,
		OccurredAt: s.now(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("kafka: encode envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	err = s.producer.WriteMessage(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: headerEvent, Value: []byte(e.EventName())}},
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", s.topic),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", s.topic),
	)
	if err != nil {
		logger.Error("kafka_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("key", key),
			observability.F("error", err),
		)
		return fmt.Errorf("kafka: write %s: %w", e.EventName(), err)
	}
	logger.Debug("kafka_published", observability.F("event", e.EventName()), observability.F("key", key))
	return nil
}

func (s *Sink) Close() error {
	return s.producer.Close()
}
