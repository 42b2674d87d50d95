package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/logger"
	"storefront/internal/usecase"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	err := n.NotifyOrderConfirmed(context.Background(), usecase.OrderConfirmed{
		OrderID:            10,
		PaymentReferenceID: "pi_10",
		CustomerEmail:      "buyer@example.com",
		TotalAmount:        2800,
		Currency:           "jpy",
		Items:              []usecase.OrderConfirmedItem{{ProductID: 7, Name: "Tee", Variant: "Large", UnitPrice: 1400, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "pi_10", string(msg.Key))
	assert.Equal(t, kafka.Header{Key: "event_type", Value: []byte("order.confirmed")}, msg.Headers[0])
	assert.Equal(t, "10", string(msg.Headers[1].Value))

	var body usecase.OrderConfirmed
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, int64(10), body.OrderID)
	require.Len(t, body.Items, 1)
	assert.Equal(t, int64(2), body.Items[0].Quantity)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}}

	err := n.NotifyOrderConfirmed(context.Background(), usecase.OrderConfirmed{OrderID: 1, PaymentReferenceID: "pi_1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.Discard())
	assert.NoError(t, n.NotifyOrderConfirmed(context.Background(), usecase.OrderConfirmed{OrderID: 1}))
}
