package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyPurchased = errors.New("coupon already purchased")
	ErrAlreadyFollowing = errors.New("already following")
)

const pqUniqueViolation = "23505"

// Postgres implementa a persistência de cupons, compras e follows
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateCoupon insere o cupom e suas legs numa transação
func (p *Postgres) CreateCoupon(ctx context.Context, c *domain.Coupon) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupons (id, tipster_id, sport, title, combined_odds, stake_cents, price_cents, status, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'PENDING')`,
		id, c.TipsterID, c.Sport, c.Title, c.CombinedOdds, c.StakeCents, c.PriceCents, domain.StatusActive)
	if err != nil {
		return "", err
	}

	for _, l := range c.Legs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO coupon_legs (id, coupon_id, fixture_id, home_team, away_team, market, selected_outcome, selection_odds, result_status, match_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'PENDING',$9)`,
			uuid.NewString(), id, l.FixtureID, l.HomeTeam, l.AwayTeam, l.Market, l.SelectedOutcome, l.SelectionOdds, l.MatchDate)
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetCoupon carrega o cupom com as legs
func (p *Postgres) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	var c domain.Coupon
	var settledAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT c.id, c.tipster_id, t.username, c.sport, c.title, c.combined_odds, c.stake_cents,
		       c.price_cents, c.status, c.result, c.purchase_count, c.posted_at, c.settled_at
		FROM coupons c
		JOIN tipsters t ON t.id = c.tipster_id
		WHERE c.id=$1`, id).Scan(
		&c.ID, &c.TipsterID, &c.TipsterName, &c.Sport, &c.Title, &c.CombinedOdds, &c.StakeCents,
		&c.PriceCents, &c.Status, &c.Result, &c.PurchaseCount, &c.PostedAt, &settledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t := settledAt.Time
		c.SettledAt = &t
	}

	legs, err := p.legsByCoupon(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Legs = legs[c.ID]
	return &c, nil
}

// ListActive retorna os cupons ACTIVE (com legs) opcionalmente filtrados
// por esporte e username do tipster; o filtro de kickoff é aplicado em Go
func (p *Postgres) ListActive(ctx context.Context, sport, tipsterUsername string) ([]domain.Coupon, error) {
	q := `
		SELECT c.id, c.tipster_id, t.username, c.sport, c.title, c.combined_odds, c.stake_cents,
		       c.price_cents, c.status, c.result, c.purchase_count, c.posted_at
		FROM coupons c
		JOIN tipsters t ON t.id = c.tipster_id
		WHERE c.status = 'ACTIVE'`
	args := []any{}
	if sport != "" {
		args = append(args, sport)
		q += ` AND c.sport = $1`
	}
	if tipsterUsername != "" {
		args = append(args, tipsterUsername)
		if len(args) == 1 {
			q += ` AND t.username = $1`
		} else {
			q += ` AND t.username = $2`
		}
	}
	q += ` ORDER BY c.posted_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []domain.Coupon
	var ids []string
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.ID, &c.TipsterID, &c.TipsterName, &c.Sport, &c.Title, &c.CombinedOdds,
			&c.StakeCents, &c.PriceCents, &c.Status, &c.Result, &c.PurchaseCount, &c.PostedAt); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	legs, err := p.legsByCoupon(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range coupons {
		coupons[i].Legs = legs[coupons[i].ID]
	}
	return coupons, nil
}

// legsByCoupon carrega as legs de um conjunto de cupons numa única query
func (p *Postgres) legsByCoupon(ctx context.Context, couponIDs []string) (map[string][]domain.Leg, error) {
	out := make(map[string][]domain.Leg, len(couponIDs))
	if len(couponIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, coupon_id, fixture_id, home_team, away_team, market, selected_outcome,
		       selection_odds, result_status, COALESCE(actual_score, ''), match_date
		FROM coupon_legs
		WHERE coupon_id = ANY($1)
		ORDER BY match_date`, pq.Array(couponIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.Leg
		if err := rows.Scan(&l.ID, &l.CouponID, &l.FixtureID, &l.HomeTeam, &l.AwayTeam, &l.Market,
			&l.SelectedOutcome, &l.SelectionOdds, &l.ResultStatus, &l.ActualScore, &l.MatchDate); err != nil {
			return nil, err
		}
		out[l.CouponID] = append(out[l.CouponID], l)
	}
	return out, rows.Err()
}

// PurchasedCouponIDs retorna os cupons já comprados pelo usuário
func (p *Postgres) PurchasedCouponIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT coupon_id FROM purchases WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// InsertPurchase grava a compra e incrementa contadores na mesma transação.
// O índice único (coupon_id, user_id) + lock na linha do cupom serializam
// duas compras concorrentes do mesmo usuário.
func (p *Postgres) InsertPurchase(ctx context.Context, couponID, userID string, priceCents int64) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var tipsterID string
	if err = tx.QueryRowContext(ctx,
		`SELECT tipster_id FROM coupons WHERE id=$1 FOR UPDATE`, couponID).Scan(&tipsterID); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, coupon_id, user_id, price_cents)
		VALUES ($1,$2,$3,$4)`, id, couponID, userID, priceCents)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return "", ErrAlreadyPurchased
	}
	if err != nil {
		return "", err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE coupons SET purchase_count = purchase_count + 1 WHERE id=$1`, couponID); err != nil {
		return "", err
	}

	// Se o comprador segue o tipster, conta como "seguidor que apostou"
	var follows bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM follows WHERE user_id=$1 AND tipster_id=$2)`,
		userID, tipsterID).Scan(&follows); err != nil {
		return "", err
	}
	if follows {
		if _, err = tx.ExecContext(ctx,
			`UPDATE tipsters SET followers_who_placed = followers_who_placed + 1 WHERE id=$1`, tipsterID); err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// HasPurchase informa se o usuário já comprou o cupom
func (p *Postgres) HasPurchase(ctx context.Context, couponID, userID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM purchases WHERE coupon_id=$1 AND user_id=$2)`,
		couponID, userID).Scan(&exists)
	return exists, err
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

// MarkPurchaseRefunded registra o bookkeeping do estorno na compra
// (o lançamento financeiro fica no ledger da carteira)
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

// CancelCoupon desativa o cupom (result REFUNDED); retorna ErrNotFound se não existir
func (p *Postgres) CancelCoupon(ctx context.Context, couponID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE coupons SET status='CANCELLED', result='REFUNDED', settled_at=NOW()
		WHERE id=$1 AND status <> 'CANCELLED'`, couponID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Follow registra que um usuário segue um tipster
func (p *Postgres) Follow(ctx context.Context, userID, tipsterID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO follows (user_id, tipster_id) VALUES ($1,$2)`, userID, tipsterID)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return ErrAlreadyFollowing
	}
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE tipsters SET followers = followers + 1 WHERE id=$1`, tipsterID); err != nil {
		return err
	}
	return tx.Commit()
}

// Unfollow remove o follow; ErrNotFound quando não existia
func (p *Postgres) Unfollow(ctx context.Context, userID, tipsterID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM follows WHERE user_id=$1 AND tipster_id=$2`, userID, tipsterID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE tipsters SET followers = GREATEST(followers - 1, 0) WHERE id=$1`, tipsterID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTipster carrega um tipster com as estatísticas denormalizadas
func (p *Postgres) GetTipster(ctx context.Context, id string) (*domain.Tipster, error) {
	var t domain.Tipster
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, is_ai, total_predictions, total_wins, total_losses,
		       win_rate, roi, current_streak, best_streak, total_profit_cents, leaderboard_rank,
		       followers, followers_who_placed
		FROM tipsters WHERE id=$1`, id).Scan(
		&t.ID, &t.Username, &t.DisplayName, &t.IsAI, &t.TotalPredictions, &t.TotalWins, &t.TotalLosses,
		&t.WinRate, &t.ROI, &t.CurrentStreak, &t.BestStreak, &t.TotalProfitCents, &t.LeaderboardRank,
		&t.Followers, &t.FollowersWhoPlaced)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Leaderboard retorna os tipsters ordenados pelo rank materializado
func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]domain.Tipster, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, display_name, is_ai, total_predictions, total_wins, total_losses,
		       win_rate, roi, current_streak, best_streak, total_profit_cents, leaderboard_rank,
		       followers, followers_who_placed
		FROM tipsters
		WHERE leaderboard_rank > 0
		ORDER BY leaderboard_rank
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tipster
	for rows.Next() {
		var t domain.Tipster
		if err := rows.Scan(&t.ID, &t.Username, &t.DisplayName, &t.IsAI, &t.TotalPredictions,
			&t.TotalWins, &t.TotalLosses, &t.WinRate, &t.ROI, &t.CurrentStreak, &t.BestStreak,
			&t.TotalProfitCents, &t.LeaderboardRank, &t.Followers, &t.FollowersWhoPlaced); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MyPurchases lista os cupons comprados pelo usuário (inclui já iniciados/liquidados)
func (p *Postgres) MyPurchases(ctx context.Context, userID string) ([]domain.Coupon, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.tipster_id, t.username, c.sport, c.title, c.combined_odds, c.stake_cents,
		       c.price_cents, c.status, c.result, c.purchase_count, c.posted_at
		FROM purchases pu
		JOIN coupons c ON c.id = pu.coupon_id
		JOIN tipsters t ON t.id = c.tipster_id
		WHERE pu.user_id=$1
		ORDER BY pu.purchased_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []domain.Coupon
	var ids []string
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.ID, &c.TipsterID, &c.TipsterName, &c.Sport, &c.Title, &c.CombinedOdds,
			&c.StakeCents, &c.PriceCents, &c.Status, &c.Result, &c.PurchaseCount, &c.PostedAt); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	legs, err := p.legsByCoupon(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range coupons {
		coupons[i].Legs = legs[coupons[i].ID]
	}
	return coupons, nil
}
