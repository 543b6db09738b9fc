package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jogardn/order-store/internal/config"
	"github.com/jogardn/order-store/internal/events"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if !cfg.Kafka.Enabled() {
		logger.Fatal("KAFKA_BROKERS must be set")
	}

	monitor := newMonitor(os.Stdout, logger)
	consumer, err := events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, monitor, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.GroupID,
	}).Info("Event monitor started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Consumer stopped")
	}

	logger.WithField("counts", monitor.Counts()).Info("Shutting down event monitor...")
}

// monitor prints every order event and keeps a count per event type.
type monitor struct {
	out    io.Writer
	logger *logrus.Logger

	mu     sync.Mutex
	counts map[string]int
}

func newMonitor(out io.Writer, logger *logrus.Logger) *monitor {
	return &monitor{out: out, logger: logger, counts: make(map[string]int)}
}

func (m *monitor) HandleOrderEvent(event events.OrderEvent) error {
	m.mu.Lock()
	m.counts[event.Type]++
	m.mu.Unlock()

	fields := logrus.Fields{
		"order_id":   event.OrderID,
		"event_type": event.Type,
		"event_time": event.EventTime,
	}
	if event.Status != "" {
		fields["status"] = event.Status
	}
	m.logger.WithFields(fields).Info("Order event")

	fmt.Fprintf(m.out, "\n=== %s ===\n", event.Type)
	fmt.Fprintf(m.out, "Time: %s\n", event.EventTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(m.out, "Order: %s\n", event.OrderID)
	if event.Status != "" {
		fmt.Fprintf(m.out, "Status: %s\n", event.Status)
	}
	if event.Order != nil {
		fmt.Fprintf(m.out, "Customer: %s\n", event.Order.CustomerName)
		fmt.Fprintf(m.out, "Total: %.2f (%d items)\n", event.Order.Total, len(event.Order.Items))
	}
	return nil
}

func (m *monitor) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
