package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:          7,
		OrderNumber: "ORD-7",
		ActorID:     models.GuestActor("abc"),
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Items: []models.OrderItem{
			{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("9.5")},
		},
		Breakdown: models.PricingBreakdown{
			Subtotal: decimal.RequireFromString("19"),
			Tax:      decimal.RequireFromString("1.52"),
			Total:    decimal.RequireFromString("20.52"),
		},
	}
}

func TestPublishOrderPlaced(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.PublishOrderPlaced(context.Background(), testOrder()))
	require.Len(t, w.messages, 1)

	m := w.messages[0]
	assert.Equal(t, "7", string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, EventTypeOrderPlaced, string(m.Headers[0].Value))

	var event OrderPlaced
	require.NoError(t, json.Unmarshal(m.Value, &event))
	assert.Equal(t, "ORD-7", event.OrderNumber)
	assert.Equal(t, "guest:abc", event.ActorID)
	assert.Equal(t, "20.52", event.Total)
	assert.Equal(t, "9.50", event.Items[0].UnitPrice)
	assert.Equal(t, "0.00", event.CouponDiscount)
}

func TestPublishOrderPlaced_WriterError(t *testing.T) {
	p := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker unavailable")}}

	err := p.PublishOrderPlaced(context.Background(), testOrder())
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestClose(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, (&KafkaPublisher{writer: w}).Close())
	assert.True(t, w.closed)
}
