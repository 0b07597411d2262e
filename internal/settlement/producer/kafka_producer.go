package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// KafkaPublisher publica o evento coupon_settled após a liquidação
type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) PublishCouponSettled(ctx context.Context, e events.CouponSettled) error {
	b, _ := json.Marshal(e)
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.CouponID), Value: b})
}
