package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func deadLetterMessage(t *testing.T, original domain.OutboxMessage, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	t.Helper()

	dead, err := json.Marshal(domain.DeadLetter{
		OutboxID:       original.ID,
		AggregateType:  original.AggregateType,
		AggregateID:    original.AggregateID,
		EventType:      original.EventType,
		Payload:        json.RawMessage(original.Payload),
		PublishError:   "kafka: broker not available",
		DLQPublishedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}

	wrapped := original
	wrapped.Payload = dead
	value, err := json.Marshal(NewEnvelope(wrapped, time.Date(2026, 3, 1, 12, 5, 1, 0, time.UTC)))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: TopicDeadLetterQueue, Value: value, Headers: headers}
}

func TestExtractReplay_RestoresOriginalEvent(t *testing.T) {
	t.Parallel()

	original := statusChangedMessage()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	msg := deadLetterMessage(t, original, &sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte("produce.orders")})

	replay, err := ExtractReplay(msg, TopicOrderEvents, now)
	if err != nil {
		t.Fatalf("ExtractReplay failed: %v", err)
	}
	if replay.Topic != "produce.orders" {
		t.Fatalf("expected original topic from header, got %s", replay.Topic)
	}
	if replay.Key != original.AggregateID {
		t.Fatalf("unexpected key %s", replay.Key)
	}
	if replay.Headers[HeaderOutboxID] != original.ID || replay.Headers[HeaderEventType] != original.EventType {
		t.Fatalf("unexpected headers: %v", replay.Headers)
	}

	envelope, err := ParseEnvelope(replay.Value)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if !envelope.PublishedAt.Equal(now) {
		t.Fatalf("unexpected publishedAt %s", envelope.PublishedAt)
	}
	if !envelope.OccurredAt.Equal(original.CreatedAt) {
		t.Fatalf("unexpected occurredAt %s", envelope.OccurredAt)
	}
	event, err := envelope.OrderEvent()
	if err != nil {
		t.Fatalf("OrderEvent failed: %v", err)
	}
	if event.OrderID != 17 || event.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected replayed event: %+v", event)
	}
}

func TestExtractReplay_DefaultTopic(t *testing.T) {
	t.Parallel()

	replay, err := ExtractReplay(deadLetterMessage(t, statusChangedMessage()), TopicOrderEvents, time.Now())
	if err != nil {
		t.Fatalf("ExtractReplay failed: %v", err)
	}
	if replay.Topic != TopicOrderEvents {
		t.Fatalf("expected default topic, got %s", replay.Topic)
	}
}

func TestExtractReplay_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		value         string
		notDeadLetter bool
	}{
		{name: "not json", value: `garbage`, notDeadLetter: true},
		{name: "unrelated object", value: `{"foo":"bar"}`, notDeadLetter: true},
		{name: "payload is not an object", value: `{"id":"x","payload":"not-an-object"}`},
		{name: "dead letter without original payload", value: `{"id":"x","payload":{"outboxId":"x","eventType":"order.created"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractReplay(&sarama.ConsumerMessage{Value: []byte(tt.value)}, TopicOrderEvents, time.Now())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotDeadLetter); got != tt.notDeadLetter {
				t.Fatalf("errors.Is(err, ErrNotDeadLetter) = %v, want %v (err: %v)", got, tt.notDeadLetter, err)
			}
		})
	}
}

func TestRecordHeaders(t *testing.T) {
	t.Parallel()

	got := RecordHeaders([]*sarama.RecordHeader{
		{Key: []byte("a"), Value: []byte("1")},
		nil,
		{Key: []byte("a"), Value: []byte("2")},
	})
	if len(got) != 1 || got["a"] != "2" {
		t.Fatalf("unexpected headers: %v", got)
	}
}
