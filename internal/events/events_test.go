package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jogardn/order-store/internal/circuitbreaker"
	"github.com/jogardn/order-store/pkg/models"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:           "order-1",
		CustomerName: "Ana",
		Email:        "ana@example.com",
		Total:        150,
		Status:       models.StatusPending,
		Items:        []models.LineItem{{ID: 1, ProductName: "Mouse", Quantity: 2, UnitPrice: 50}},
	}
}

func TestKafkaProducerPublishesJSON(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != EventOrderCreated || event.OrderID != "order-1" {
			return fmt.Errorf("unexpected event %+v", event)
		}
		if event.Order == nil || len(event.Order.Items) != 1 {
			return fmt.Errorf("expected the order snapshot, got %+v", event.Order)
		}
		return nil
	})

	producer := NewKafkaProducerWith(mock, "", nil, quietLogger())
	if producer.topic != OrderEventsTopic {
		t.Errorf("Expected default topic %s, got %s", OrderEventsTopic, producer.topic)
	}

	if err := producer.Publish(context.Background(), OrderCreated(sampleOrder())); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestKafkaProducerOpensBreaker(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	sendErr := errors.New("broker unavailable")
	mock.ExpectSendMessageAndFail(sendErr)
	mock.ExpectSendMessageAndFail(sendErr)

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "kafka",
		MaxFailures: 2,
		Timeout:     time.Minute,
	}, quietLogger())
	producer := NewKafkaProducerWith(mock, OrderEventsTopic, breaker, quietLogger())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := producer.Publish(ctx, OrderDeleted("order-1")); !errors.Is(err, sendErr) {
			t.Fatalf("Expected send error, got %v", err)
		}
	}

	// Third publish never reaches the producer.
	if err := producer.Publish(ctx, OrderDeleted("order-1")); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if breaker.State() != circuitbreaker.StateOpen {
		t.Errorf("Expected open breaker, got %s", breaker.State())
	}

	mock.Close()
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event OrderEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	first := &recordingPublisher{}
	failErr := errors.New("down")
	second := &recordingPublisher{err: failErr}
	third := &recordingPublisher{}

	err := Multi{first, second, third, NopPublisher{}}.Publish(context.Background(), OrderStatusUpdated("order-1", models.StatusShipped))
	if !errors.Is(err, failErr) {
		t.Errorf("Expected joined error to contain %v, got %v", failErr, err)
	}
	for i, p := range []*recordingPublisher{first, second, third} {
		if len(p.events) != 1 {
			t.Errorf("Publisher %d received %d events", i, len(p.events))
		}
	}
	if first.events[0].Status != models.StatusShipped || first.events[0].Type != EventOrderStatusUpdated {
		t.Errorf("Unexpected event: %+v", first.events[0])
	}

	if err := (Multi{}).Publish(context.Background(), OrderDeleted("x")); err != nil {
		t.Errorf("Expected nil from empty Multi, got %v", err)
	}
}

type recordingHandler struct {
	events []OrderEvent
}

func (h *recordingHandler) HandleOrderEvent(event OrderEvent) error {
	h.events = append(h.events, event)
	return nil
}

func TestHandleMessage(t *testing.T) {
	handler := &recordingHandler{}
	h := &consumerGroupHandler{handler: handler, logger: quietLogger()}

	data, err := json.Marshal(OrderUpdated(sampleOrder()))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.handleMessage(&sarama.ConsumerMessage{Topic: OrderEventsTopic, Value: data}); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if len(handler.events) != 1 || handler.events[0].Type != EventOrderUpdated || handler.events[0].Total != 150 {
		t.Errorf("Unexpected events: %+v", handler.events)
	}

	if err := h.handleMessage(&sarama.ConsumerMessage{Value: []byte("{not json")}); err == nil {
		t.Error("Expected error for malformed message")
	}
	if len(handler.events) != 1 {
		t.Errorf("Malformed message reached the handler")
	}
}
