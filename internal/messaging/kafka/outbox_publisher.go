package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует события заказов из outbox в Kafka topic.
// Ключом сообщения служит id заказа, поэтому события одного заказа попадают
// в одну партицию и читаются в порядке записи.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	source   string
	now      func() time.Time
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт паблишер в dead letter topic для событий,
// которые не удалось доставить после всех попыток.
func NewDLQPublisher(producer *Producer, sourceTopic string) *OutboxTopicPublisher {
	p := NewOutboxPublisher(producer, TopicDeadLetterQueue)
	if sourceTopic == "" {
		sourceTopic = TopicOrderEvents
	}
	p.source = sourceTopic
	return p
}

// Publish реализует domain.OutboxPublisher.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	value, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}
	if p.source != "" {
		headers[HeaderOriginalTopic] = p.source
	}

	return p.producer.Send(p.topic, key, value, headers)
}

// Topic возвращает топик назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}
