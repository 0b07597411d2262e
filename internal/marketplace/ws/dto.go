package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// TipsterID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type      string `json:"type"`      // subscribe | unsubscribe | ping
	TipsterID string `json:"tipsterId"` // requerido em subscribe/unsubscribe
}

// SettlementUpdate é o payload enviado aos clientes inscritos num tipster
// quando um cupom dele é liquidado
type SettlementUpdate struct {
	TipsterID string      `json:"tipsterId"`
	Payload   interface{} `json:"payload"`
}
