package stats

import (
	"math"
	"sort"
	"time"
)

// Result é o desfecho de um cupom liquidado
type Result string

const (
	Won      Result = "WON"
	Lost     Result = "LOST"
	Refunded Result = "REFUNDED"
)

// Settled é a projeção mínima de um cupom liquidado usada na agregação
type Settled struct {
	Result       Result
	StakeCents   int64
	CombinedOdds float64
	SettledAt    time.Time
}

// Aggregates são as estatísticas denormalizadas do tipster.
// A fonte da verdade são os cupons liquidados; estes campos são sempre
// recalculados do zero a cada liquidação (Compute é idempotente por construção)
type Aggregates struct {
	TotalPredictions int
	TotalWins        int
	TotalLosses      int
	WinRate          float64 // percentual, 2 casas; 0 quando não há liquidações
	ROI              float64 // percentual, 2 casas
	CurrentStreak    int     // positivo = vitórias seguidas, negativo = derrotas
	BestStreak       int     // maior sequência de vitórias da história
	ProfitCents      int64
	StakedCents      int64
}

// round2 arredonda para 2 casas decimais
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Profit calcula o lucro (em centavos) de um cupom liquidado
// WON: stake * (odds - 1); LOST: -stake; REFUNDED: 0 (não entra na conta)
func Profit(s Settled) int64 {
	switch s.Result {
	case Won:
		return int64(math.Round(float64(s.StakeCents) * (s.CombinedOdds - 1)))
	case Lost:
		return -s.StakeCents
	}
	return 0
}

// Compute recalcula as estatísticas a partir dos cupons liquidados.
// Cupons REFUNDED não contam como vitória nem derrota e não entram no ROI.
// A ordem de entrada é irrelevante: a função ordena por SettledAt.
func Compute(settled []Settled) Aggregates {
	ordered := make([]Settled, len(settled))
	copy(ordered, settled)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SettledAt.Before(ordered[j].SettledAt)
	})

	var a Aggregates
	winRun := 0
	lossRun := 0

	for _, s := range ordered {
		switch s.Result {
		case Won:
			a.TotalPredictions++
			a.TotalWins++
			a.StakedCents += s.StakeCents
			a.ProfitCents += Profit(s)
			winRun++
			lossRun = 0
			if winRun > a.BestStreak {
				a.BestStreak = winRun
			}
		case Lost:
			a.TotalPredictions++
			a.TotalLosses++
			a.StakedCents += s.StakeCents
			a.ProfitCents += Profit(s)
			lossRun++
			winRun = 0
		default:
			// REFUNDED não quebra nem estende sequência
		}
	}

	if winRun > 0 {
		a.CurrentStreak = winRun
	} else if lossRun > 0 {
		a.CurrentStreak = -lossRun
	}

	if a.TotalPredictions > 0 {
		a.WinRate = round2(float64(a.TotalWins) / float64(a.TotalPredictions) * 100)
	}
	if a.StakedCents > 0 {
		a.ROI = round2(float64(a.ProfitCents) / float64(a.StakedCents) * 100)
	}

	return a
}

// Ranked associa um tipster às suas estatísticas para ordenação de leaderboard
type Ranked struct {
	TipsterID string
	Agg       Aggregates
}

// Less define a ordem do leaderboard. Desempate, nesta ordem:
// maior ROI, maior win rate, mais predições, menor id (determinístico)
func Less(a, b Ranked) bool {
	if a.Agg.ROI != b.Agg.ROI {
		return a.Agg.ROI > b.Agg.ROI
	}
	if a.Agg.WinRate != b.Agg.WinRate {
		return a.Agg.WinRate > b.Agg.WinRate
	}
	if a.Agg.TotalPredictions != b.Agg.TotalPredictions {
		return a.Agg.TotalPredictions > b.Agg.TotalPredictions
	}
	return a.TipsterID < b.TipsterID
}

// Rank ordena o slice in-place na ordem do leaderboard (posição = índice + 1)
func Rank(rs []Ranked) {
	sort.Slice(rs, func(i, j int) bool { return Less(rs[i], rs[j]) })
}
