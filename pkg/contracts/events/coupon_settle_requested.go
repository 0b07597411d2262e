package events

// Evento emitido pelo marketplace-service quando um admin força a liquidação
// de um cupom com resultado explícito (override do fluxo automático)
type CouponSettleRequested struct {
	CouponID    string `json:"coupon_id"`
	Result      string `json:"result"` // "WON" | "LOST" | "REFUNDED"
	RequestedBy string `json:"requested_by,omitempty"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
