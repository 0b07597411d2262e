package dto

import "github.com/radieske/tipster-marketplace-poc/internal/wallet/repo"

type BalanceResponse struct {
	UserID       string `json:"userId"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balance_cents"`
}

type ReconcileResponse struct {
	UserID         string `json:"userId"`
	WalletID       string `json:"walletId"`
	BalanceCents   int64  `json:"balance_cents"`
	LedgerSumCents int64  `json:"ledger_sum_cents"`
	Consistent     bool   `json:"consistent"`
}

type TransactionsResponse struct {
	UserID       string       `json:"userId"`
	Transactions []repo.Entry `json:"transactions"`
	Limit        int          `json:"limit"`
	Offset       int          `json:"offset"`
}
