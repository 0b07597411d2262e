package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/tipster-marketplace-poc/internal/tipster/stats"
)

// Postgres persiste as estatísticas denormalizadas dos tipsters
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// SettledForTipster carrega a projeção de cupons liquidados do tipster
// usada pelo recálculo de estatísticas (REFUNDED incluso: é neutro no Compute)
func (p *Postgres) SettledForTipster(ctx context.Context, tipsterID string) ([]stats.Settled, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT result, stake_cents, combined_odds, settled_at
		FROM coupons
		WHERE tipster_id=$1 AND status='SETTLED'
		ORDER BY settled_at`, tipsterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Settled
	for rows.Next() {
		var s stats.Settled
		if err := rows.Scan(&s.Result, &s.StakeCents, &s.CombinedOdds, &s.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateAggregates grava as estatísticas recalculadas do tipster
func (p *Postgres) UpdateAggregates(ctx context.Context, tipsterID string, a stats.Aggregates) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE tipsters SET
			total_predictions=$2, total_wins=$3, total_losses=$4,
			win_rate=$5, roi=$6, current_streak=$7, best_streak=$8,
			total_profit_cents=$9, total_staked_cents=$10, stats_updated_at=NOW()
		WHERE id=$1`,
		tipsterID, a.TotalPredictions, a.TotalWins, a.TotalLosses,
		a.WinRate, a.ROI, a.CurrentStreak, a.BestStreak,
		a.ProfitCents, a.StakedCents)
	return err
}

// AllAggregates carrega as estatísticas de todos os tipsters com pelo menos
// uma liquidação, para o recálculo global de rank
func (p *Postgres) AllAggregates(ctx context.Context) ([]stats.Ranked, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, total_predictions, total_wins, total_losses, win_rate, roi
		FROM tipsters
		WHERE total_predictions > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Ranked
	for rows.Next() {
		var r stats.Ranked
		if err := rows.Scan(&r.TipsterID, &r.Agg.TotalPredictions, &r.Agg.TotalWins,
			&r.Agg.TotalLosses, &r.Agg.WinRate, &r.Agg.ROI); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRanks materializa as posições do leaderboard (posição = índice + 1).
// Tipsters fora do slice ficam com rank 0 (sem liquidações)
func (p *Postgres) UpdateRanks(ctx context.Context, ranked []stats.Ranked) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `UPDATE tipsters SET leaderboard_rank=0`); err != nil {
		return err
	}
	for i, r := range ranked {
		if _, err = tx.ExecContext(ctx,
			`UPDATE tipsters SET leaderboard_rank=$2 WHERE id=$1`, r.TipsterID, i+1); err != nil {
			return err
		}
	}
	return tx.Commit()
}
