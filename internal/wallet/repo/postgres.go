package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/tipster-marketplace-poc/internal/wallet/ledger"
)

var ErrNotFound = errors.New("not found")

// Entry é uma linha do ledger retornada pelo extrato
type Entry struct {
	ID          string           `json:"id"`
	EntryType   ledger.EntryType `json:"entryType"`
	AmountCents int64            `json:"amount_cents"` // com sinal: crédito positivo, débito negativo
	ExternalRef string           `json:"external_ref,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Postgres implementa operações de carteira em banco.
// O saldo armazenado em wallets é mantido em transação junto com o ledger
// append-only; a soma dos lançamentos com sinal é sempre igual ao saldo.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var id string
	var bal int64
	err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal)
	if err == sql.ErrNoRows {
		id = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1)`,
			id, userID); err != nil {
			return "", 0, err
		}
		bal = 0
	} else if err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}

	return id, bal, nil
}

// Append registra um lançamento no ledger e atualiza o saldo na mesma transação.
// Lock pessimista na linha da carteira serializa débitos concorrentes do mesmo
// usuário; o check de saldo acontece ANTES de qualquer escrita.
// Idempotência por (wallet_id, entry_type, external_ref): replay devolve o saldo
// corrente sem duplicar o lançamento.
func (p *Postgres) Append(ctx context.Context, userID string, entry ledger.EntryType, amountCents int64, externalRef string) (newBalance int64, err error) {
	if _, _, err = p.GetOrCreateWallet(ctx, userID); err != nil {
		return 0, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var walletID string
	var balance int64
	if err = tx.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}

	// Idempotência: external_ref repetido para o mesmo tipo não lança de novo
	if externalRef != "" {
		var exists string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM wallet_ledger WHERE wallet_id=$1 AND entry_type=$2 AND external_ref=$3`,
			walletID, string(entry), externalRef).Scan(&exists)
		if err == nil {
			return balance, tx.Commit()
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}

	newBalance, err = ledger.Apply(balance, entry, amountCents)
	if err != nil {
		return 0, err
	}

	signed, err := ledger.SignedAmount(entry, amountCents)
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents=$1, version=version+1 WHERE id=$2`, newBalance, walletID); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(id, wallet_id, entry_type, amount_cents, external_ref) VALUES($1,$2,$3,$4,$5)`,
		uuid.NewString(), walletID, string(entry), signed, nullable(externalRef)); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Transactions retorna o extrato em ordem cronológica reversa, paginado
func (p *Postgres) Transactions(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT wl.id, wl.entry_type, wl.amount_cents, COALESCE(wl.external_ref, ''), wl.created_at
		FROM wallet_ledger wl
		JOIN wallets w ON w.id = wl.wallet_id
		WHERE w.user_id=$1
		ORDER BY wl.created_at DESC, wl.id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var entryType string
		if err := rows.Scan(&e.ID, &entryType, &e.AmountCents, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = ledger.EntryType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LedgerSum soma os lançamentos com sinal; usado em reconciliação/healthcheck
// Invariante: LedgerSum == balance_cents armazenado
func (p *Postgres) LedgerSum(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(wl.amount_cents), 0)
		FROM wallet_ledger wl
		JOIN wallets w ON w.id = wl.wallet_id
		WHERE w.user_id=$1`, userID).Scan(&sum)
	return sum, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
