package dto

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // opcional p/ idempotência simples
}

type WithdrawRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"`
}

// DebitRequest é usado pelo marketplace-service ao cobrar a compra de um cupom
type DebitRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"` // ex: "coupon:{couponId}"
}

// CreditRequest cobre bônus de indicação, payout e comissão de tipster
type CreditRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	EntryType   string `json:"entry_type,omitempty"` // CREDIT (default) | PAYOUT
	ExternalRef string `json:"external_ref"`
}

type RefundRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"` // ex: "settle:{couponId}:{purchaseId}"
}
