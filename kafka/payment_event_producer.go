package kafka

import (
	"context"
	"encoding/json"

	"github.com/Victormzing/storefront-bff/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PaymentEventProducer publishes terminal payment transitions for downstream
// consumers (notifications, analytics). A nil producer is a no-op so the
// engine runs without Kafka configured.
type PaymentEventProducer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

func NewPaymentEventProducer(brokers []string, topic string, log *zap.Logger) *PaymentEventProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("kafka producer initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &PaymentEventProducer{writer: w, topic: topic, log: log}
}

func (p *PaymentEventProducer) SendPaymentEvent(event models.PaymentEvent) error {
	if p == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	}

	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.log.Error("failed to send payment event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	p.log.Info("payment event sent",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("payment_id", event.PaymentID))
	return nil
}

func (p *PaymentEventProducer) Close() {
	if p == nil {
		return
	}
	_ = p.writer.Close()
	p.log.Info("kafka producer closed", zap.String("topic", p.topic))
}
