package referral

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implementa Repo sobre as tabelas referral_codes e referral_conversions
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const pqUniqueViolation = "23505"

// GetOrCreateCode cria o código na primeira chamada; colisão no índice único
// de código dispara nova tentativa com um código recém-gerado
func (p *Postgres) GetOrCreateCode(ctx context.Context, userID string, gen func() (string, error)) (string, error) {
	var code string
	err := p.db.QueryRowContext(ctx, `SELECT code FROM referral_codes WHERE user_id=$1`, userID).Scan(&code)
	if err == nil {
		return code, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	const maxAttempts = 5
	for i := 0; i < maxAttempts; i++ {
		code, err = gen()
		if err != nil {
			return "", err
		}
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO referral_codes(user_id, code) VALUES($1,$2)`, userID, code)
		if err == nil {
			return code, nil
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			// corrida na criação do próprio usuário: outro request já inseriu
			var existing string
			if serr := p.db.QueryRowContext(ctx,
				`SELECT code FROM referral_codes WHERE user_id=$1`, userID).Scan(&existing); serr == nil {
				return existing, nil
			}
			continue // colisão de código com outro usuário: tenta de novo
		}
		return "", err
	}
	return "", err
}

func (p *Postgres) OwnerOfCode(ctx context.Context, code string) (string, error) {
	var owner string
	err := p.db.QueryRowContext(ctx, `SELECT user_id FROM referral_codes WHERE code=$1`, code).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (p *Postgres) InsertConversion(ctx context.Context, referrerID, referredUserID, code string, rewardCents int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO referral_conversions(id, referrer_id, referred_user_id, code, reward_credited, reward_cents)
		VALUES($1,$2,$3,$4,false,$5)`,
		uuid.NewString(), referrerID, referredUserID, code, rewardCents)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return ErrAlreadyConverted
	}
	return err
}

// ClaimUncredited usa UPDATE condicional como claim atômico:
// duas compras concorrentes do mesmo indicado disputam a mesma linha
// e apenas uma vê reward_credited=false
func (p *Postgres) ClaimUncredited(ctx context.Context, referredUserID string, firstPurchaseAt time.Time) (string, int64, bool, error) {
	var referrerID string
	var reward int64
	err := p.db.QueryRowContext(ctx, `
		UPDATE referral_conversions
		SET reward_credited=true, first_purchase_at=$2
		WHERE referred_user_id=$1 AND reward_credited=false
		RETURNING referrer_id, reward_cents`,
		referredUserID, firstPurchaseAt).Scan(&referrerID, &reward)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return referrerID, reward, true, nil
}

func (p *Postgres) ConversionsByReferrer(ctx context.Context, referrerID string) ([]Conversion, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, referrer_id, referred_user_id, code, reward_credited, reward_cents, first_purchase_at, created_at
		FROM referral_conversions
		WHERE referrer_id=$1
		ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var c Conversion
		var firstPurchase sql.NullTime
		if err := rows.Scan(&c.ID, &c.ReferrerID, &c.ReferredUserID, &c.Code,
			&c.RewardCredited, &c.RewardCents, &firstPurchase, &c.CreatedAt); err != nil {
			return nil, err
		}
		if firstPurchase.Valid {
			t := firstPurchase.Time
			c.FirstPurchaseAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
