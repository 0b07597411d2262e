package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de compra e de pedido de liquidação
type KafkaPublisher struct {
	Purchased *kafka.Writer
	Settle    *kafka.Writer
}

func NewKafkaPublisher(purchased, settle *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Purchased: purchased, Settle: settle}
}

func (p *KafkaPublisher) PublishCouponPurchased(ctx context.Context, e events.CouponPurchased) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.Purchased.WriteMessages(ctx, kafka.Message{Key: []byte(e.CouponID), Value: b})
}

func (p *KafkaPublisher) PublishSettleRequested(ctx context.Context, e events.CouponSettleRequested) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.Settle.WriteMessages(ctx, kafka.Message{Key: []byte(e.CouponID), Value: b})
}
