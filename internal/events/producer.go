package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/jogardn/order-store/internal/circuitbreaker"
	"github.com/sirupsen/logrus"
)

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers []string, topic string, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewKafkaProducerWith(producer, topic, breaker, logger), nil
}

// NewKafkaProducerWith wraps an existing sarama producer. The breaker may be
// nil, in which case every message is sent.
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *KafkaProducer {
	if topic == "" {
		topic = OrderEventsTopic
	}
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		breaker:  breaker,
		logger:   logger,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, event OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	var partition int32
	var offset int64
	send := func() error {
		var err error
		partition, offset, err = p.producer.SendMessage(msg)
		return err
	}

	if p.breaker != nil {
		err = p.breaker.Execute(ctx, send)
	} else {
		err = send()
	}
	if err != nil {
		p.logger.WithError(err).WithField("order_id", event.OrderID).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":      p.topic,
		"partition":  partition,
		"offset":     offset,
		"order_id":   event.OrderID,
		"event_type": event.Type,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
