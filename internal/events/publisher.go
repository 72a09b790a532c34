// Package events announces committed orders to downstream consumers over
// Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/segmentio/kafka-go"
)

const EventTypeOrderPlaced = "order.placed"

type OrderPlacedItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderPlaced is the event payload. Money is carried as decimal strings.
type OrderPlaced struct {
	OrderID           int64             `json:"order_id"`
	OrderNumber       string            `json:"order_number"`
	ActorID           string            `json:"actor_id"`
	Items             []OrderPlacedItem `json:"items"`
	Subtotal          string            `json:"subtotal"`
	PromotionDiscount string            `json:"promotion_discount"`
	CouponDiscount    string            `json:"coupon_discount"`
	CouponCode        string            `json:"coupon_code,omitempty"`
	Tax               string            `json:"tax"`
	Shipping          string            `json:"shipping"`
	Total             string            `json:"total"`
	PlacedAt          time.Time         `json:"placed_at"`
}

func NewOrderPlaced(order *models.Order) OrderPlaced {
	bd := order.Breakdown
	items := make([]OrderPlacedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderPlacedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	return OrderPlaced{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		ActorID:           order.ActorID.String(),
		Items:             items,
		Subtotal:          bd.Subtotal.StringFixed(2),
		PromotionDiscount: bd.PromotionDiscount.StringFixed(2),
		CouponDiscount:    bd.CouponDiscount.StringFixed(2),
		CouponCode:        bd.CouponCode,
		Tax:               bd.Tax.StringFixed(2),
		Shipping:          bd.Shipping.StringFixed(2),
		Total:             bd.Total.StringFixed(2),
		PlacedAt:          order.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// PublishOrderPlaced keys the message by order id so events for one order
// stay on one partition.
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	payload, err := json.Marshal(NewOrderPlaced(order))
	if err != nil {
		return fmt.Errorf("marshal order.placed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order %d: %w", order.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
