package dto

import "time"

// LegRequest é uma seleção do cupom sendo publicado
type LegRequest struct {
	FixtureID       string    `json:"fixtureId"`
	HomeTeam        string    `json:"homeTeam"`
	AwayTeam        string    `json:"awayTeam"`
	Market          string    `json:"market"`          // "1x2" | "over_under_2.5" | "btts"
	SelectedOutcome string    `json:"selectedOutcome"` // ex: "home", "over", "yes"
	SelectionOdds   float64   `json:"selectionOdds"`
	MatchDate       time.Time `json:"matchDate"`
}

type CreateCouponRequest struct {
	TipsterID  string       `json:"tipsterId"`
	Sport      string       `json:"sport"`
	Title      string       `json:"title"`
	StakeCents int64        `json:"stake_cents"`
	PriceCents int64        `json:"price_cents"` // 0 = gratuito
	Legs       []LegRequest `json:"legs"`
}

type PurchaseRequest struct {
	UserID string `json:"userId"`
}

// SettleRequest força a liquidação de um cupom com resultado explícito (admin)
type SettleRequest struct {
	Result      string `json:"result"` // "WON" | "LOST" | "REFUNDED"
	RequestedBy string `json:"requestedBy,omitempty"`
}

type FollowRequest struct {
	UserID string `json:"userId"`
}

type ConvertReferralRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}
