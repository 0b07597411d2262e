package events

type CouponPurchased struct {
	CouponID   string `json:"coupon_id"`
	PurchaseID string `json:"purchase_id"`
	UserID     string `json:"user_id"`
	TipsterID  string `json:"tipster_id"`
	PriceCents int64  `json:"price_cents"`
	TsUnixMs   int64  `json:"ts_unix_ms"`
}
