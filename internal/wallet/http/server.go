package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/wallet/dto"
	"github.com/radieske/tipster-marketplace-poc/internal/wallet/ledger"
	"github.com/radieske/tipster-marketplace-poc/internal/wallet/repo"
)

// Repo define a interface de operações de carteira usadas pelo handler HTTP
type Repo interface {
	GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error)
	Append(ctx context.Context, userID string, entry ledger.EntryType, amountCents int64, externalRef string) (newBalance int64, err error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]repo.Entry, error)
	LedgerSum(ctx context.Context, userID string) (int64, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log  *zap.Logger
	repo Repo
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wallet/balance", s.balance)           // GET ?userId=...
	mux.HandleFunc("/wallet/transactions", s.transactions) // GET ?userId=&limit=&offset=
	mux.HandleFunc("/wallet/deposit", s.deposit)           // POST
	mux.HandleFunc("/wallet/withdraw", s.withdraw)         // POST
	mux.HandleFunc("/wallet/debit", s.debit)               // POST (interno: compra de cupom)
	mux.HandleFunc("/wallet/credit", s.credit)             // POST (interno: bônus/payout)
	mux.HandleFunc("/wallet/refund", s.refund)             // POST (interno: estorno)
	mux.HandleFunc("/wallet/reconcile", s.reconcile)       // GET ?userId=... (diagnóstico)
	return mux
}

// reconcile compara o saldo armazenado com a soma do ledger.
// Os dois têm que bater sempre; divergência indica escrita fora da transação
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sum, err := s.repo.LedgerSum(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sum != bal {
		s.log.Error("wallet out of balance",
			zap.String("walletId", walletID), zap.Int64("stored", bal), zap.Int64("ledger", sum))
	}
	writeJSON(w, dto.ReconcileResponse{
		UserID: userID, WalletID: walletID,
		BalanceCents: bal, LedgerSumCents: sum, Consistent: sum == bal,
	})
}

// balance retorna (ou cria) a carteira e saldo do usuário
func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BalanceResponse{UserID: userID, WalletID: walletID, BalanceCents: bal})
}

// transactions retorna o extrato paginado, mais recente primeiro
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	txs, err := s.repo.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.TransactionsResponse{UserID: userID, Transactions: txs, Limit: limit, Offset: offset})
}

// deposit adiciona saldo à carteira do usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.append(w, r, req.UserID, ledger.Deposit, req.AmountCents, req.ExternalRef)
}

// withdraw debita saldo; falha com 402 se o saldo for insuficiente
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.append(w, r, req.UserID, ledger.Withdrawal, req.AmountCents, req.ExternalRef)
}

// debit registra a cobrança de uma compra de cupom (chamado pelo marketplace-service)
func (s *Server) debit(w http.ResponseWriter, r *http.Request) {
	var req dto.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.append(w, r, req.UserID, ledger.Purchase, req.AmountCents, req.ExternalRef)
}

// credit registra bônus de indicação ou payout/comissão de tipster
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	entry := ledger.Credit
	if req.EntryType != "" {
		entry = ledger.EntryType(req.EntryType)
		if !ledger.Valid(entry) || !ledger.IsCredit(entry) {
			http.Error(w, "invalid entry_type", http.StatusBadRequest)
			return
		}
	}
	s.append(w, r, req.UserID, entry, req.AmountCents, req.ExternalRef)
}

// refund devolve o valor de uma compra via lançamento compensatório
func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.append(w, r, req.UserID, ledger.Refund, req.AmountCents, req.ExternalRef)
}

// append centraliza a escrita no ledger e o mapeamento de erros para HTTP
func (s *Server) append(w http.ResponseWriter, r *http.Request, userID string, entry ledger.EntryType, amount int64, ref string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	newBal, err := s.repo.Append(r.Context(), userID, entry, amount, ref)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			http.Error(w, "insufficient funds", http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrUnknownEntryType), errors.Is(err, ledger.ErrInvalidAmount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repo.ErrNotFound):
			http.Error(w, "wallet not found", http.StatusNotFound)
		default:
			s.log.Error("wallet append", zap.String("userId", userID), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, dto.BalanceResponse{UserID: userID, BalanceCents: newBal})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
