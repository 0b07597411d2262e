package events

import "time"

// Evento emitido pelo settlement-worker após liquidar um cupom.
type CouponSettled struct {
	CouponID      string    `json:"couponId"`
	TipsterID     string    `json:"tipsterId"`
	Result        string    `json:"result"` // "WON" | "LOST" | "REFUNDED"
	Refunds       int       `json:"refunds"`
	RefundedCents int64     `json:"refunded_cents"`
	SettledAt     time.Time `json:"settledAt"`
}
