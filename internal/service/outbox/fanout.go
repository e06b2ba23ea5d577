package outbox

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// NamedPublisher: подписчик fan-out с именем для логов и ошибок.
type NamedPublisher struct {
	Name      string
	Publisher domain.OutboxPublisher
}

// FanoutPublisher отдаёт событие всем подписчикам по очереди. Ошибка одного
// подписчика не мешает остальным; итоговая ошибка объединяет все сбои.
type FanoutPublisher struct {
	targets []NamedPublisher
}

var _ domain.OutboxPublisher = (*FanoutPublisher)(nil)

// NewFanoutPublisher пропускает подписчиков с nil Publisher.
func NewFanoutPublisher(targets ...NamedPublisher) *FanoutPublisher {
	filtered := make([]NamedPublisher, 0, len(targets))
	for _, target := range targets {
		if target.Publisher != nil {
			filtered = append(filtered, target)
		}
	}
	return &FanoutPublisher{targets: filtered}
}

// Len возвращает число подключённых подписчиков.
func (p *FanoutPublisher) Len() int {
	return len(p.targets)
}

// Publish реализует domain.OutboxPublisher.
func (p *FanoutPublisher) Publish(event domain.OutboxMessage) error {
	var errs []error
	for _, target := range p.targets {
		if err := target.Publisher.Publish(event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.Name, err))
		}
	}
	return errors.Join(errs...)
}
