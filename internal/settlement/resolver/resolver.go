package resolver

import "errors"

// Mercados suportados nas legs de um cupom
const (
	Market1x2         = "1x2"
	MarketOverUnder25 = "over_under_2.5"
	MarketBTTS        = "btts"
)

// Outcomes por mercado
const (
	OutcomeHome  = "home"
	OutcomeDraw  = "draw"
	OutcomeAway  = "away"
	OutcomeOver  = "over"
	OutcomeUnder = "under"
	OutcomeYes   = "yes"
	OutcomeNo    = "no"
)

// Status de resolução de uma leg
const (
	LegPending = "PENDING"
	LegWon     = "WON"
	LegLost    = "LOST"
	LegVoid    = "VOID" // partida cancelada/adiada: leg sai da conta
)

// Resultado final do cupom (semântica de acumulador)
const (
	CouponPending  = "PENDING"
	CouponWon      = "WON"
	CouponLost     = "LOST"
	CouponRefunded = "REFUNDED"
)

var (
	ErrUnknownMarket  = errors.New("unknown market")
	ErrUnknownOutcome = errors.New("unknown outcome")
)

// KnownSelection diz se o par mercado/outcome é liquidável.
// A criação de cupons usa isso para rejeitar legs que nunca resolveriam.
func KnownSelection(market, selectedOutcome string) bool {
	_, err := ResolveLeg(market, selectedOutcome, Score{})
	return err == nil
}

// Score é o placar final de uma partida
type Score struct {
	Home int
	Away int
}

// ResolveLeg deriva o resultado de uma leg a partir do placar final
// Retorna LegWon ou LegLost; cancelamento é tratado pelo chamador (VOID)
func ResolveLeg(market, selectedOutcome string, s Score) (string, error) {
	switch market {
	case Market1x2:
		var winner string
		switch {
		case s.Home > s.Away:
			winner = OutcomeHome
		case s.Away > s.Home:
			winner = OutcomeAway
		default:
			winner = OutcomeDraw
		}
		switch selectedOutcome {
		case OutcomeHome, OutcomeDraw, OutcomeAway:
			if selectedOutcome == winner {
				return LegWon, nil
			}
			return LegLost, nil
		}
		return "", ErrUnknownOutcome

	case MarketOverUnder25:
		over := s.Home+s.Away > 2
		switch selectedOutcome {
		case OutcomeOver:
			if over {
				return LegWon, nil
			}
			return LegLost, nil
		case OutcomeUnder:
			if !over {
				return LegWon, nil
			}
			return LegLost, nil
		}
		return "", ErrUnknownOutcome

	case MarketBTTS:
		both := s.Home > 0 && s.Away > 0
		switch selectedOutcome {
		case OutcomeYes:
			if both {
				return LegWon, nil
			}
			return LegLost, nil
		case OutcomeNo:
			if !both {
				return LegWon, nil
			}
			return LegLost, nil
		}
		return "", ErrUnknownOutcome
	}

	return "", ErrUnknownMarket
}

// CouponResult aplica a semântica de acumulador sobre as legs:
// - qualquer leg LOST -> LOST
// - alguma leg PENDING -> PENDING (ainda não liquida)
// - todas VOID -> REFUNDED
// - caso contrário (todas WON ou WON+VOID) -> WON
func CouponResult(legStatuses []string) string {
	if len(legStatuses) == 0 {
		return CouponPending
	}

	pending := false
	voids := 0
	for _, st := range legStatuses {
		switch st {
		case LegLost:
			// derrota em uma leg derruba o acumulador inteiro,
			// mesmo com outras legs ainda pendentes
			return CouponLost
		case LegPending:
			pending = true
		case LegVoid:
			voids++
		}
	}

	if pending {
		return CouponPending
	}
	if voids == len(legStatuses) {
		return CouponRefunded
	}
	return CouponWon
}
