package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/pubsub"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/repo"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/resolver"
	"github.com/radieske/tipster-marketplace-poc/internal/tipster/stats"
	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// Repo é o recorte de persistência usado na liquidação
type Repo interface {
	PendingLegsByFixture(ctx context.Context, fixtureID string) ([]domain.Leg, error)
	CouponIDsByFixture(ctx context.Context, fixtureID string) ([]string, error)
	SetLegResult(ctx context.Context, legID, status, actualScore string) error
	LegStatuses(ctx context.Context, couponID string) ([]string, error)
	VoidPendingLegs(ctx context.Context, couponID string) error
	SettleCoupon(ctx context.Context, couponID, result string) (repo.SettledCoupon, bool, error)
	UnrefundedPurchases(ctx context.Context, couponID string) ([]domain.Purchase, error)
	MarkPurchaseRefunded(ctx context.Context, purchaseID string) error
}

// StatsRepo recalcula e materializa as estatísticas dos tipsters
type StatsRepo interface {
	SettledForTipster(ctx context.Context, tipsterID string) ([]stats.Settled, error)
	UpdateAggregates(ctx context.Context, tipsterID string, a stats.Aggregates) error
	AllAggregates(ctx context.Context) ([]stats.Ranked, error)
	UpdateRanks(ctx context.Context, ranked []stats.Ranked) error
}

// Wallet estorna compras quando o cupom é perdido ou anulado
type Wallet interface {
	Refund(ctx context.Context, userID string, cents int64, externalRef string) error
}

// Publisher publica o evento coupon_settled
type Publisher interface {
	PublishCouponSettled(ctx context.Context, e events.CouponSettled) error
}

// Broadcaster repassa a liquidação para o WS via Redis Pub/Sub
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// LeaderboardCache invalida o cache após recalcular ranks
type LeaderboardCache interface {
	InvalidateLeaderboard(ctx context.Context) error
}

// Processor consome resultados de partidas e pedidos manuais de liquidação,
// resolve as legs, liquida cupons e recalcula estatísticas.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log         *zap.Logger
	Results     *kafka.Reader
	SettleReqs  *kafka.Reader
	ResultsDLQ  *kafka.Writer
	Repo        Repo
	Stats       StatsRepo
	Wallet      Wallet
	Publisher   Publisher
	Broadcaster Broadcaster
	Cache       LeaderboardCache

	OnConsumed func()       // métricas (counter++)
	OnSettled  func(string) // métricas por resultado
	OnRefund   func()       // métricas
	OnError    func(string) // métricas por fase
}

// RunFixtureResults é o loop principal: consome fixture_results e liquida
// os cupons cujas legs ficaram todas resolvidas
func (p *Processor) RunFixtureResults(ctx context.Context) error {
	for {
		m, err := p.Results.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.metricError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		p.metricConsumed()

		var ev events.FixtureResult
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid fixture_result", zap.Error(err))
			p.metricError("decode")
			continue
		}

		if err := p.HandleFixtureResult(ctx, ev); err != nil {
			p.Log.Error("handle fixture_result", zap.String("fixtureId", ev.FixtureID), zap.Error(err))
			p.metricError("process")
			if p.ResultsDLQ != nil {
				_ = p.ResultsDLQ.WriteMessages(ctx, kafka.Message{Key: []byte(ev.FixtureID), Value: m.Value})
			}
		}
	}
}

// RunSettleRequests consome os overrides manuais vindos do marketplace-service
func (p *Processor) RunSettleRequests(ctx context.Context) error {
	for {
		m, err := p.SettleReqs.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.metricError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		p.metricConsumed()

		var ev events.CouponSettleRequested
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid settle request", zap.Error(err))
			p.metricError("decode")
			continue
		}

		if err := p.HandleSettleRequest(ctx, ev); err != nil {
			p.Log.Error("handle settle request", zap.String("couponId", ev.CouponID), zap.Error(err))
			p.metricError("process")
		}
	}
}

// HandleFixtureResult resolve as legs pendentes da partida e liquida os
// cupons afetados cuja semântica de acumulador já tem desfecho
func (p *Processor) HandleFixtureResult(ctx context.Context, ev events.FixtureResult) error {
	legs, err := p.Repo.PendingLegsByFixture(ctx, ev.FixtureID)
	if err != nil {
		return err
	}

	score := ""
	if !ev.Cancelled {
		score = fmt.Sprintf("%d-%d", ev.HomeScore, ev.AwayScore)
	}

	for _, l := range legs {
		status := resolver.LegVoid
		if !ev.Cancelled {
			status, err = resolver.ResolveLeg(l.Market, l.SelectedOutcome, resolver.Score{
				Home: ev.HomeScore, Away: ev.AwayScore,
			})
			if err != nil {
				// mercado/outcome desconhecido: anula a leg em vez de travar o cupom
				p.Log.Warn("unresolvable leg, voiding",
					zap.String("legId", l.ID), zap.String("market", l.Market), zap.Error(err))
				status = resolver.LegVoid
			}
		}
		if err := p.Repo.SetLegResult(ctx, l.ID, status, score); err != nil {
			return err
		}
	}

	// Os cupons afetados vêm de todas as legs da partida, não só das que
	// acabaram de resolver: a reentrega (ou replay da DLQ) volta a passar
	// pelos cupons já liquidados e settleOne cura estornos e estatísticas
	// que falharam na primeira passada
	couponIDs, err := p.Repo.CouponIDsByFixture(ctx, ev.FixtureID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, couponID := range couponIDs {
		statuses, err := p.Repo.LegStatuses(ctx, couponID)
		if err != nil {
			return err
		}
		result := resolver.CouponResult(statuses)
		if result == resolver.CouponPending {
			continue
		}
		// um cupom travado não bloqueia a liquidação dos demais
		if err := p.settleOne(ctx, couponID, result); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleSettleRequest aplica um override manual: anula as legs ainda
// pendentes e liquida o cupom com o resultado pedido
func (p *Processor) HandleSettleRequest(ctx context.Context, ev events.CouponSettleRequested) error {
	if err := p.Repo.VoidPendingLegs(ctx, ev.CouponID); err != nil {
		return err
	}
	return p.settleOne(ctx, ev.CouponID, ev.Result)
}

// settleOne liquida um cupom: transição ACTIVE->SETTLED, estornos quando
// LOST ou REFUNDED (garantia de devolução ao comprador), recálculo de
// estatísticas e rank, broadcast e evento.
// Numa reentrega da mensagem a transição já aconteceu (settled=false):
// o evento não é republicado, mas a varredura de estornos e o recálculo
// de estatísticas rodam de novo, para a reentrega curar o que falhou na
// primeira passada. Ambos são idempotentes.
func (p *Processor) settleOne(ctx context.Context, couponID, result string) error {
	sc, settled, err := p.Repo.SettleCoupon(ctx, couponID, result)
	if err != nil {
		return err
	}
	if !settled {
		if sc.Status != "SETTLED" {
			// cancelado ou inexistente: nada a liquidar
			return nil
		}
		result = sc.Result
	}

	refunds := 0
	pendingRefunds := 0
	var refundedCents int64
	if result == resolver.CouponLost || result == resolver.CouponRefunded {
		purchases, err := p.Repo.UnrefundedPurchases(ctx, couponID)
		if err != nil {
			return err
		}
		for _, pu := range purchases {
			ref := "settle:" + couponID + ":" + pu.ID
			if err := p.Wallet.Refund(ctx, pu.UserID, pu.PriceCents, ref); err != nil {
				p.Log.Error("settle refund failed",
					zap.String("purchaseId", pu.ID), zap.Error(err))
				p.metricError("refund")
				pendingRefunds++
				continue
			}
			if err := p.Repo.MarkPurchaseRefunded(ctx, pu.ID); err != nil {
				p.Log.Error("mark refunded failed", zap.String("purchaseId", pu.ID), zap.Error(err))
				pendingRefunds++
				continue
			}
			refunds++
			refundedCents += pu.PriceCents
			if p.OnRefund != nil {
				p.OnRefund()
			}
		}
	}

	// Evento e broadcast só na passada que fez a transição, antes do
	// recálculo: um erro de estatística não engole o coupon_settled
	if settled {
		settledEv := events.CouponSettled{
			CouponID:      couponID,
			TipsterID:     sc.TipsterID,
			Result:        result,
			Refunds:       refunds,
			RefundedCents: refundedCents,
			SettledAt:     sc.SettledAt,
		}
		if err := p.Publisher.PublishCouponSettled(ctx, settledEv); err != nil {
			p.Log.Error("publish coupon_settled", zap.Error(err))
			p.metricError("publish")
		}
		if p.Broadcaster != nil {
			payload, _ := json.Marshal(pubsub.WSUpdate{TipsterID: sc.TipsterID, Payload: settledEv})
			if err := p.Broadcaster.Publish(ctx, pubsub.ChannelSettlementsBroadcast, payload); err != nil {
				p.Log.Warn("ws broadcast failed", zap.Error(err))
			}
		}
		if p.OnSettled != nil {
			p.OnSettled(result)
		}
	}

	// Estatísticas são sempre recalculadas do zero a partir dos cupons
	// liquidados, então reprocessamentos não acumulam em dobro
	settledCoupons, err := p.Stats.SettledForTipster(ctx, sc.TipsterID)
	if err != nil {
		return err
	}
	if err := p.Stats.UpdateAggregates(ctx, sc.TipsterID, stats.Compute(settledCoupons)); err != nil {
		return err
	}

	all, err := p.Stats.AllAggregates(ctx)
	if err != nil {
		return err
	}
	stats.Rank(all)
	if err := p.Stats.UpdateRanks(ctx, all); err != nil {
		return err
	}
	if p.Cache != nil {
		if err := p.Cache.InvalidateLeaderboard(ctx); err != nil {
			p.Log.Warn("leaderboard invalidate failed", zap.Error(err))
		}
	}

	if pendingRefunds > 0 {
		return fmt.Errorf("coupon %s: %d refunds still pending", couponID, pendingRefunds)
	}
	return nil
}

func (p *Processor) metricConsumed() {
	if p.OnConsumed != nil {
		p.OnConsumed()
	}
}

func (p *Processor) metricError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}
