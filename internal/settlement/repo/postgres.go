package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"
)

var ErrNotFound = errors.New("not found")

// SettledCoupon é a projeção devolvida ao liquidar um cupom.
// Result e Status refletem o estado gravado, o que importa quando a
// transição já tinha acontecido numa entrega anterior da mensagem.
type SettledCoupon struct {
	ID           string
	TipsterID    string
	StakeCents   int64
	CombinedOdds float64
	SettledAt    time.Time
	Result       string
	Status       string
}

// Postgres implementa os acessos a banco do settlement-worker
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// PendingLegsByFixture lista as legs PENDING amarradas à partida
func (p *Postgres) PendingLegsByFixture(ctx context.Context, fixtureID string) ([]domain.Leg, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, coupon_id, fixture_id, market, selected_outcome
		FROM coupon_legs
		WHERE fixture_id=$1 AND result_status='PENDING'`, fixtureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Leg
	for rows.Next() {
		var l domain.Leg
		if err := rows.Scan(&l.ID, &l.CouponID, &l.FixtureID, &l.Market, &l.SelectedOutcome); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetLegResult grava o resultado de uma leg; só transiciona a partir de PENDING
func (p *Postgres) SetLegResult(ctx context.Context, legID, status, actualScore string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE coupon_legs SET result_status=$2, actual_score=NULLIF($3,''), resolved_at=NOW()
		WHERE id=$1 AND result_status='PENDING'`, legID, status, actualScore)
	return err
}

// CouponIDsByFixture lista os cupons com alguma leg amarrada à partida,
// resolvida ou não — reprocessamentos precisam rever cupons já liquidados
func (p *Postgres) CouponIDsByFixture(ctx context.Context, fixtureID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT coupon_id FROM coupon_legs WHERE fixture_id=$1`, fixtureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LegStatuses devolve os status de todas as legs do cupom
func (p *Postgres) LegStatuses(ctx context.Context, couponID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT result_status FROM coupon_legs WHERE coupon_id=$1`, couponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// VoidPendingLegs anula as legs ainda PENDING (override manual de liquidação)
func (p *Postgres) VoidPendingLegs(ctx context.Context, couponID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE coupon_legs SET result_status='VOID', resolved_at=NOW()
		WHERE coupon_id=$1 AND result_status='PENDING'`, couponID)
	return err
}

// SettleCoupon marca o cupom como SETTLED com o resultado dado.
// settled=false quando a transição não aconteceu agora; nesse caso o cupom
// vem com o estado já gravado, para o worker poder refazer estornos e
// estatísticas numa reentrega sem duplicar efeitos.
func (p *Postgres) SettleCoupon(ctx context.Context, couponID, result string) (SettledCoupon, bool, error) {
	var sc SettledCoupon
	err := p.db.QueryRowContext(ctx, `
		UPDATE coupons SET status='SETTLED', result=$2, settled_at=NOW()
		WHERE id=$1 AND status='ACTIVE'
		RETURNING id, tipster_id, stake_cents, combined_odds, settled_at`,
		couponID, result).Scan(&sc.ID, &sc.TipsterID, &sc.StakeCents, &sc.CombinedOdds, &sc.SettledAt)
	if err == nil {
		sc.Result = result
		sc.Status = "SETTLED"
		return sc, true, nil
	}
	if err != sql.ErrNoRows {
		return SettledCoupon{}, false, err
	}

	err = p.db.QueryRowContext(ctx, `
		SELECT id, tipster_id, stake_cents, combined_odds, COALESCE(settled_at, NOW()), result, status
		FROM coupons WHERE id=$1`, couponID).
		Scan(&sc.ID, &sc.TipsterID, &sc.StakeCents, &sc.CombinedOdds, &sc.SettledAt, &sc.Result, &sc.Status)
	if err == sql.ErrNoRows {
		return SettledCoupon{}, false, nil
	}
	if err != nil {
		return SettledCoupon{}, false, err
	}
	return sc, false, nil
}

// UnrefundedPurchases lista as compras do cupom ainda sem estorno
func (p *Postgres) UnrefundedPurchases(ctx context.Context, couponID string) ([]domain.Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, coupon_id, user_id, price_cents, purchased_at
		FROM purchases
		WHERE coupon_id=$1 AND refunded_at IS NULL
		ORDER BY purchased_at`, couponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		var pu domain.Purchase
		if err := rows.Scan(&pu.ID, &pu.CouponID, &pu.UserID, &pu.PriceCents, &pu.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}

// MarkPurchaseRefunded registra o estorno da compra
func (p *Postgres) MarkPurchaseRefunded(ctx context.Context, purchaseID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE purchases SET refunded_at=NOW() WHERE id=$1 AND refunded_at IS NULL`, purchaseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
