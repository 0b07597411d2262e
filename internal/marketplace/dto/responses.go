package dto

import "github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"

type CreateCouponResponse struct {
	CouponID string `json:"couponId"`
	Status   string `json:"status"`
}

type MarketplaceResponse struct {
	Coupons []domain.Coupon `json:"coupons"`
	Count   int             `json:"count"`
}

type PurchaseResponse struct {
	PurchaseID string `json:"purchaseId"`
	CouponID   string `json:"couponId"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

type SettleResponse struct {
	CouponID string `json:"couponId"`
	Status   string `json:"status"` // SETTLE_REQUESTED
}

type CancelResponse struct {
	CouponID string `json:"couponId"`
	Refunds  int    `json:"refunds"`
	// Estornos que falharam nesta chamada; repetir o DELETE tenta de novo
	PendingRefunds int    `json:"pendingRefunds"`
	Status         string `json:"status"`
}

type LeaderboardResponse struct {
	Tipsters []domain.Tipster `json:"tipsters"`
	Cached   bool             `json:"cached"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
