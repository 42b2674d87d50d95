package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"storefront/internal/usecase"

	"github.com/segmentio/kafka-go"
)

const eventTypeOrderConfirmed = "order.confirmed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// 注文確定をKafkaに流す。メール送信は購読側の仕事
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(topic string, brokers ...string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w}
}

func (n *KafkaNotifier) NotifyOrderConfirmed(ctx context.Context, msg usecase.OrderConfirmed) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order confirmed: %w", err)
	}

	// 同じ注文のメッセージは同じパーティションへ
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.PaymentReferenceID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventTypeOrderConfirmed)},
			{Key: "order_id", Value: []byte(strconv.FormatInt(msg.OrderID, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// ブローカー未設定時の通知先。ログに残すだけ
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOrderConfirmed(ctx context.Context, msg usecase.OrderConfirmed) error {
	n.log.InfoContext(ctx, "order confirmed",
		"order_id", msg.OrderID,
		"payment_reference_id", msg.PaymentReferenceID,
		"customer_email", msg.CustomerEmail,
		"total_amount", msg.TotalAmount,
	)
	return nil
}
