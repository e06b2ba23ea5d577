package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func statusChangedMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "8f1c2a9e-2d4f-4f7e-9a51-3b7f5a1c0d11",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "17",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"eventType":"order.status_changed","orderId":17,"status":"Delivered"}`),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "17" {
			t.Errorf("expected order id as key, got %s", key)
		}
		headers := headerMap(msg)
		if headers[HeaderEventType] != domain.EventOrderStatusChanged || headers[HeaderOriginalTopic] != "" {
			t.Errorf("unexpected headers: %v", headers)
		}

		value, _ := msg.Value.Encode()
		envelope, err := ParseEnvelope(value)
		if err != nil {
			return err
		}
		event, err := envelope.OrderEvent()
		if err != nil {
			return err
		}
		if event.OrderID != 17 || event.Status != domain.OrderStatusDelivered {
			t.Errorf("unexpected event: %+v", event)
		}
		if !envelope.OccurredAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected occurredAt: %s", envelope.OccurredAt)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic, got %s", publisher.Topic())
	}
	if err := publisher.Publish(statusChangedMessage()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDLQPublisher_MarksOriginalTopic(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		if got := headerMap(msg)[HeaderOriginalTopic]; got != "orders" {
			t.Errorf("expected original topic header, got %q", got)
		}
		return nil
	})

	publisher := NewDLQPublisher(newProducer(mockProducer, nil), "orders")
	if err := publisher.Publish(statusChangedMessage()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), TopicOrderEvents)
	if err := publisher.Publish(statusChangedMessage()); err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestNewEnvelope_EmptyPayloadIsNull(t *testing.T) {
	t.Parallel()

	envelope := NewEnvelope(domain.OutboxMessage{ID: "x", EventType: domain.EventOrderDeleted}, time.Now())
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(parsed.Payload) != "null" {
		t.Fatalf("expected null payload, got %s", parsed.Payload)
	}
}
