package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// ErrNotDeadLetter: сообщение в DLQ не похоже на dead letter outbox worker-а.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// ReplayMessage: событие из DLQ, готовое к повторной публикации.
type ReplayMessage struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// RecordHeaders переводит заголовки sarama в map; при повторах побеждает последний.
func RecordHeaders(headers []*sarama.RecordHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == nil {
			continue
		}
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

// ExtractReplay восстанавливает исходное событие из сообщения DLQ.
// Топик назначения берётся из заголовка x-original-topic, иначе defaultTopic.
func ExtractReplay(msg *sarama.ConsumerMessage, defaultTopic string, now time.Time) (ReplayMessage, error) {
	if msg == nil {
		return ReplayMessage{}, ErrNotDeadLetter
	}

	envelope, err := ParseEnvelope(msg.Value)
	if err != nil {
		return ReplayMessage{}, fmt.Errorf("%w: %v", ErrNotDeadLetter, err)
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return ReplayMessage{}, ErrNotDeadLetter
	}

	var dead domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return ReplayMessage{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return ReplayMessage{}, errors.New("dead letter does not contain original event payload")
	}

	replay := Envelope{
		ID:            firstNonEmpty(dead.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, envelope.EventType),
		Payload:       dead.Payload,
		OccurredAt:    envelope.OccurredAt,
		PublishedAt:   now.UTC(),
	}
	value, err := json.Marshal(replay)
	if err != nil {
		return ReplayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	topic := defaultTopic
	if original := strings.TrimSpace(RecordHeaders(msg.Headers)[HeaderOriginalTopic]); original != "" {
		topic = original
	}

	return ReplayMessage{
		Topic: topic,
		Key:   firstNonEmpty(replay.AggregateID, replay.ID),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     replay.EventType,
			HeaderAggregateType: replay.AggregateType,
			HeaderOutboxID:      replay.ID,
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
