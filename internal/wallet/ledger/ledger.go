package ledger

import "errors"

// EntryType identifica o tipo de lançamento no ledger da carteira.
// O ledger é append-only: correções são feitas por lançamentos compensatórios
// (ex: REFUND), nunca editando ou removendo linhas históricas.
type EntryType string

const (
	Deposit    EntryType = "DEPOSIT"
	Withdrawal EntryType = "WITHDRAWAL"
	Purchase   EntryType = "PURCHASE"
	Payout     EntryType = "PAYOUT"
	Commission EntryType = "COMMISSION"
	Refund     EntryType = "REFUND"
	Credit     EntryType = "CREDIT"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownEntryType  = errors.New("unknown entry type")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// IsCredit informa se o tipo soma ao saldo (crédito) ou subtrai (débito)
func IsCredit(t EntryType) bool {
	switch t {
	case Deposit, Payout, Refund, Credit:
		return true
	}
	return false
}

// Valid informa se o tipo de lançamento é conhecido
func Valid(t EntryType) bool {
	switch t {
	case Deposit, Withdrawal, Purchase, Payout, Commission, Refund, Credit:
		return true
	}
	return false
}

// SignedAmount converte um valor positivo no valor com sinal a persistir no ledger
// Créditos ficam positivos, débitos negativos; o saldo é a soma dos valores com sinal
func SignedAmount(t EntryType, amountCents int64) (int64, error) {
	if !Valid(t) {
		return 0, ErrUnknownEntryType
	}
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	if IsCredit(t) {
		return amountCents, nil
	}
	return -amountCents, nil
}

// Apply calcula o novo saldo após um lançamento.
// Débito que deixaria o saldo negativo falha ANTES de qualquer escrita:
// o chamador só persiste o lançamento quando Apply retorna sem erro.
func Apply(balanceCents int64, t EntryType, amountCents int64) (int64, error) {
	signed, err := SignedAmount(t, amountCents)
	if err != nil {
		return balanceCents, err
	}
	newBal := balanceCents + signed
	if newBal < 0 {
		return balanceCents, ErrInsufficientFunds
	}
	return newBal, nil
}
