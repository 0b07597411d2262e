package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/wallet/dto"
	"github.com/radieske/tipster-marketplace-poc/internal/wallet/ledger"
	"github.com/radieske/tipster-marketplace-poc/internal/wallet/repo"
)

// fakeRepo mantém carteiras em memória com a mesma semântica do Postgres:
// saldo armazenado + ledger append-only + idempotência por external_ref
type fakeRepo struct {
	mu      sync.Mutex
	balance map[string]int64
	entries map[string][]repo.Entry
	refs    map[string]bool // userID|entry|ref
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		balance: map[string]int64{},
		entries: map[string][]repo.Entry{},
		refs:    map[string]bool{},
	}
}

func (f *fakeRepo) GetOrCreateWallet(_ context.Context, userID string) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "w-" + userID, f.balance[userID], nil
}

func (f *fakeRepo) Append(_ context.Context, userID string, entry ledger.EntryType, amount int64, ref string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref != "" {
		key := userID + "|" + string(entry) + "|" + ref
		if f.refs[key] {
			return f.balance[userID], nil // replay idempotente
		}
		f.refs[key] = true
	}

	newBal, err := ledger.Apply(f.balance[userID], entry, amount)
	if err != nil {
		return 0, err
	}
	signed, _ := ledger.SignedAmount(entry, amount)
	f.balance[userID] = newBal
	f.entries[userID] = append([]repo.Entry{{
		EntryType:   entry,
		AmountCents: signed,
		ExternalRef: ref,
		CreatedAt:   time.Now(),
	}}, f.entries[userID]...)
	return newBal, nil
}

func (f *fakeRepo) LedgerSum(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries[userID] {
		sum += e.AmountCents
	}
	return sum, nil
}

func (f *fakeRepo) Transactions(_ context.Context, userID string, limit, offset int) ([]repo.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.entries[userID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func newTestServer() (*Server, *fakeRepo) {
	r := newFakeRepo()
	return NewServer(zap.NewNop(), r), r
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBalance_CreatesWallet(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/wallet/balance?userId=u1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Zero(t, resp.BalanceCents)
}

func TestBalance_RequiresUserID(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Depósito 100, compra 20, estorno 20 -> saldo 100
func TestDepositDebitRefund_Flow(t *testing.T) {
	s, _ := newTestServer()
	h := s.Router()

	rec := post(t, h, "/wallet/deposit", dto.DepositRequest{UserID: "u1", AmountCents: 10000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, "/wallet/debit", dto.DebitRequest{UserID: "u1", AmountCents: 2000, ExternalRef: "coupon:c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, "/wallet/refund", dto.RefundRequest{UserID: "u1", AmountCents: 2000, ExternalRef: "settle:c1:p1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(10000), resp.BalanceCents)
}

func TestDebit_InsufficientFunds(t *testing.T) {
	s, _ := newTestServer()
	h := s.Router()

	post(t, h, "/wallet/deposit", dto.DepositRequest{UserID: "u1", AmountCents: 1000})

	rec := post(t, h, "/wallet/debit", dto.DebitRequest{UserID: "u1", AmountCents: 5000, ExternalRef: "coupon:c1"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// o débito rejeitado não entra no extrato
	req := httptest.NewRequest(http.MethodGet, "/wallet/transactions?userId=u1", nil)
	trec := httptest.NewRecorder()
	h.ServeHTTP(trec, req)
	var txs dto.TransactionsResponse
	require.NoError(t, json.Unmarshal(trec.Body.Bytes(), &txs))
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, ledger.Deposit, txs.Transactions[0].EntryType)
}

func TestDebit_IdempotentByRef(t *testing.T) {
	s, _ := newTestServer()
	h := s.Router()

	post(t, h, "/wallet/deposit", dto.DepositRequest{UserID: "u1", AmountCents: 10000})

	req := dto.DebitRequest{UserID: "u1", AmountCents: 2000, ExternalRef: "coupon:c1"}
	rec := post(t, h, "/wallet/debit", req)
	require.Equal(t, http.StatusOK, rec.Code)

	// replay com o mesmo ref não debita de novo
	rec = post(t, h, "/wallet/debit", req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(8000), resp.BalanceCents)
}

func TestCredit_RejectsDebitEntryType(t *testing.T) {
	s, _ := newTestServer()
	rec := post(t, s.Router(), "/wallet/credit", dto.CreditRequest{
		UserID: "u1", AmountCents: 500, EntryType: "PURCHASE", ExternalRef: "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactions_Paginated(t *testing.T) {
	s, _ := newTestServer()
	h := s.Router()

	for i := 0; i < 5; i++ {
		post(t, h, "/wallet/deposit", dto.DepositRequest{UserID: "u1", AmountCents: int64(100 * (i + 1))})
	}

	req := httptest.NewRequest(http.MethodGet, "/wallet/transactions?userId=u1&limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.TransactionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 2)
	// mais recente primeiro: offset 1 pula o depósito de 500
	assert.Equal(t, int64(400), resp.Transactions[0].AmountCents)
	assert.Equal(t, int64(300), resp.Transactions[1].AmountCents)
}

func TestReconcile_LedgerMatchesBalance(t *testing.T) {
	s, _ := newTestServer()
	h := s.Router()

	post(t, h, "/wallet/deposit", dto.DepositRequest{UserID: "u1", AmountCents: 10000})
	post(t, h, "/wallet/debit", dto.DebitRequest{UserID: "u1", AmountCents: 3000, ExternalRef: "coupon:c1"})

	req := httptest.NewRequest(http.MethodGet, "/wallet/reconcile?userId=u1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Consistent)
	assert.Equal(t, int64(7000), resp.BalanceCents)
	assert.Equal(t, resp.BalanceCents, resp.LedgerSumCents)
}
