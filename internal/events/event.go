package events

import (
	"context"
	"errors"
	"time"

	"github.com/jogardn/order-store/pkg/models"
)

const (
	OrderEventsTopic = "orders.events"

	EventOrderCreated       = "order.created"
	EventOrderStatusUpdated = "order.status_updated"
	EventOrderUpdated       = "order.updated"
	EventOrderDeleted       = "order.deleted"
)

// OrderEvent is emitted after a mutation has been committed.
type OrderEvent struct {
	Type      string        `json:"type"`
	OrderID   string        `json:"order_id"`
	Status    models.Status `json:"status,omitempty"`
	Total     float64       `json:"total,omitempty"`
	Order     *models.Order `json:"order,omitempty"`
	EventTime time.Time     `json:"event_time"`
}

func OrderCreated(order *models.Order) OrderEvent {
	return OrderEvent{
		Type:      EventOrderCreated,
		OrderID:   order.ID,
		Status:    order.Status,
		Total:     order.Total,
		Order:     order,
		EventTime: time.Now().UTC(),
	}
}

func OrderStatusUpdated(id string, status models.Status) OrderEvent {
	return OrderEvent{
		Type:      EventOrderStatusUpdated,
		OrderID:   id,
		Status:    status,
		EventTime: time.Now().UTC(),
	}
}

func OrderUpdated(order *models.Order) OrderEvent {
	return OrderEvent{
		Type:      EventOrderUpdated,
		OrderID:   order.ID,
		Status:    order.Status,
		Total:     order.Total,
		Order:     order,
		EventTime: time.Now().UTC(),
	}
}

func OrderDeleted(id string) OrderEvent {
	return OrderEvent{
		Type:      EventOrderDeleted,
		OrderID:   id,
		EventTime: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event OrderEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
