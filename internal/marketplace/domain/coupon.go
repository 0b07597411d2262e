package domain

import "time"

// Status do cupom
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusSettled   = "SETTLED"
	StatusCancelled = "CANCELLED"
)

// Resultado do cupom
const (
	ResultPending  = "PENDING"
	ResultWon      = "WON"
	ResultLost     = "LOST"
	ResultRefunded = "REFUNDED"
)

// Leg é uma seleção dentro de um cupom, amarrada a uma partida
type Leg struct {
	ID              string    `json:"id"`
	CouponID        string    `json:"couponId"`
	FixtureID       string    `json:"fixtureId"`
	HomeTeam        string    `json:"homeTeam"`
	AwayTeam        string    `json:"awayTeam"`
	Market          string    `json:"market"`          // "1x2" | "over_under_2.5" | "btts"
	SelectedOutcome string    `json:"selectedOutcome"` // ex: "home", "over", "yes"
	SelectionOdds   float64   `json:"selectionOdds"`
	ResultStatus    string    `json:"resultStatus"` // PENDING | WON | LOST | VOID
	ActualScore     string    `json:"actualScore,omitempty"`
	MatchDate       time.Time `json:"matchDate"`
}

// Coupon é o acumulador publicado por um tipster e vendável no marketplace
type Coupon struct {
	ID            string     `json:"id"`
	TipsterID     string     `json:"tipsterId"`
	TipsterName   string     `json:"tipsterUsername,omitempty"`
	Sport         string     `json:"sport"`
	Title         string     `json:"title"`
	CombinedOdds  float64    `json:"combinedOdds"`
	StakeCents    int64      `json:"stake_cents"`
	PriceCents    int64      `json:"price_cents"` // 0 = gratuito
	Status        string     `json:"status"`
	Result        string     `json:"result"`
	PurchaseCount int        `json:"purchaseCount"`
	PostedAt      time.Time  `json:"postedAt"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
	Legs          []Leg      `json:"legs,omitempty"`
}

// KickedOff informa se alguma leg do cupom já começou
func (c Coupon) KickedOff(now time.Time) bool {
	for _, l := range c.Legs {
		if !l.MatchDate.After(now) {
			return true
		}
	}
	return false
}

// OpenForPurchase informa se o cupom ainda pode ser comprado:
// precisa estar ACTIVE e nenhuma leg pode ter começado
func (c Coupon) OpenForPurchase(now time.Time) bool {
	return c.Status == StatusActive && !c.KickedOff(now)
}

// FilterMarketplace aplica as regras de vitrine sobre cupons ACTIVE:
// remove cupons com leg já iniciada e cupons que o usuário já comprou.
// includeAll (admin) pula os dois filtros.
func FilterMarketplace(coupons []Coupon, purchased map[string]bool, now time.Time, includeAll bool) []Coupon {
	if includeAll {
		return coupons
	}
	out := make([]Coupon, 0, len(coupons))
	for _, c := range coupons {
		if !c.OpenForPurchase(now) {
			continue
		}
		if purchased[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Purchase liga um usuário a um cupom comprado
// Imutável após criação; estorno é registrado no ledger da carteira
type Purchase struct {
	ID          string     `json:"id"`
	CouponID    string     `json:"couponId"`
	UserID      string     `json:"userId"`
	PriceCents  int64      `json:"price_cents"`
	PurchasedAt time.Time  `json:"purchasedAt"`
	RefundedAt  *time.Time `json:"refundedAt,omitempty"`
}

// Tipster com estatísticas denormalizadas (recalculadas a cada liquidação)
type Tipster struct {
	ID                 string  `json:"id"`
	Username           string  `json:"username"`
	DisplayName        string  `json:"displayName"`
	IsAI               bool    `json:"isAi"`
	TotalPredictions   int     `json:"totalPredictions"`
	TotalWins          int     `json:"totalWins"`
	TotalLosses        int     `json:"totalLosses"`
	WinRate            float64 `json:"winRate"`
	ROI                float64 `json:"roi"`
	CurrentStreak      int     `json:"currentStreak"`
	BestStreak         int     `json:"bestStreak"`
	TotalProfitCents   int64   `json:"total_profit_cents"`
	LeaderboardRank    int     `json:"leaderboardRank"`
	Followers          int     `json:"followers"`
	FollowersWhoPlaced int     `json:"followersWhoPlaced"`
}
