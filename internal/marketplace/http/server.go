package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/dto"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/repo"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/wallet"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/ws"
	"github.com/radieske/tipster-marketplace-poc/internal/referral"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/resolver"
	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// Repo é o recorte da persistência usado pelos handlers
type Repo interface {
	CreateCoupon(ctx context.Context, c *domain.Coupon) (string, error)
	GetCoupon(ctx context.Context, id string) (*domain.Coupon, error)
	ListActive(ctx context.Context, sport, tipsterUsername string) ([]domain.Coupon, error)
	PurchasedCouponIDs(ctx context.Context, userID string) (map[string]bool, error)
	InsertPurchase(ctx context.Context, couponID, userID string, priceCents int64) (string, error)
	MyPurchases(ctx context.Context, userID string) ([]domain.Coupon, error)
	UnrefundedPurchases(ctx context.Context, couponID string) ([]domain.Purchase, error)
	MarkPurchaseRefunded(ctx context.Context, purchaseID string) error
	CancelCoupon(ctx context.Context, couponID string) error
	Follow(ctx context.Context, userID, tipsterID string) error
	Unfollow(ctx context.Context, userID, tipsterID string) error
	GetTipster(ctx context.Context, id string) (*domain.Tipster, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Tipster, error)
}

// WalletClient é o recorte do wallet-service usado na compra/estorno
type WalletClient interface {
	Debit(ctx context.Context, userID string, cents int64, externalRef string) error
	Refund(ctx context.Context, userID string, cents int64, externalRef string) error
}

// Publisher publica os eventos de domínio no Kafka
type Publisher interface {
	PublishCouponPurchased(ctx context.Context, e events.CouponPurchased) error
	PublishSettleRequested(ctx context.Context, e events.CouponSettleRequested) error
}

// LeaderboardCache é o cache Redis do leaderboard (best-effort)
type LeaderboardCache interface {
	GetLeaderboard(ctx context.Context, dst any) (bool, error)
	SetLeaderboard(ctx context.Context, v any, ttl time.Duration) error
}

const (
	leaderboardTTL      = 30 * time.Second
	leaderboardCacheTop = 100 // topo completo em cache; o recorte é por request
)

type Server struct {
	log      *zap.Logger
	repo     Repo
	wcli     WalletClient
	publ     Publisher
	cache    LeaderboardCache
	referral *referral.Service
	hub      *ws.Hub
	now      func() time.Time
}

func NewServer(log *zap.Logger, r Repo, w WalletClient, p Publisher, c LeaderboardCache, ref *referral.Service, hub *ws.Hub) *Server {
	return &Server{log: log, repo: r, wcli: w, publ: p, cache: c, referral: ref, hub: hub, now: time.Now}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/accumulators/marketplace", s.listMarketplace)
	r.Post("/accumulators", s.createCoupon)
	r.Get("/accumulators/my", s.myPurchases)
	r.Get("/accumulators/{id}", s.getCoupon)
	r.Delete("/accumulators/{id}", s.cancelCoupon)
	r.Post("/accumulators/{id}/purchase", s.purchase)
	r.Post("/accumulators/{id}/settle", s.requestSettle)
	r.Get("/leaderboard", s.leaderboard)
	r.Get("/tipsters/{id}", s.getTipster)
	r.Post("/tipsters/{id}/follow", s.follow)
	r.Delete("/tipsters/{id}/follow", s.unfollow)
	r.Get("/referrals/my", s.myReferrals)
	r.Post("/referrals/convert", s.convertReferral)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// GET /accumulators/marketplace?sport=&tipster=&userId=&includeAll=
// Vitrine: cupons ACTIVE sem leg iniciada, excluindo os já comprados pelo usuário
func (s *Server) listMarketplace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeAll := q.Get("includeAll") == "true"

	coupons, err := s.repo.ListActive(r.Context(), q.Get("sport"), q.Get("tipster"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	purchased := map[string]bool{}
	if uid := q.Get("userId"); uid != "" && !includeAll {
		purchased, err = s.repo.PurchasedCouponIDs(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	out := domain.FilterMarketplace(coupons, purchased, s.now(), includeAll)
	writeJSON(w, http.StatusOK, dto.MarketplaceResponse{Coupons: out, Count: len(out)})
}

// POST /accumulators
func (s *Server) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.TipsterID == "" || req.Sport == "" || req.StakeCents <= 0 || req.PriceCents < 0 || len(req.Legs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// combined_odds é sempre derivada das legs, nunca aceita do cliente
	combined := 1.0
	legs := make([]domain.Leg, 0, len(req.Legs))
	now := s.now()
	for _, l := range req.Legs {
		if l.FixtureID == "" || l.SelectionOdds < 1.01 || !l.MatchDate.After(now) {
			writeError(w, http.StatusBadRequest, "invalid leg")
			return
		}
		// mercado/outcome precisam ser liquidáveis, senão a leg ficaria VOID
		if !resolver.KnownSelection(l.Market, l.SelectedOutcome) {
			writeError(w, http.StatusBadRequest, "unknown market or outcome")
			return
		}
		combined *= l.SelectionOdds
		legs = append(legs, domain.Leg{
			FixtureID:       l.FixtureID,
			HomeTeam:        l.HomeTeam,
			AwayTeam:        l.AwayTeam,
			Market:          l.Market,
			SelectedOutcome: l.SelectedOutcome,
			SelectionOdds:   l.SelectionOdds,
			MatchDate:       l.MatchDate,
		})
	}

	id, err := s.repo.CreateCoupon(r.Context(), &domain.Coupon{
		TipsterID:    req.TipsterID,
		Sport:        req.Sport,
		Title:        req.Title,
		CombinedOdds: combined,
		StakeCents:   req.StakeCents,
		PriceCents:   req.PriceCents,
		Legs:         legs,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, dto.CreateCouponResponse{CouponID: id, Status: domain.StatusActive})
}

// GET /accumulators/{id}
func (s *Server) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.GetCoupon(r.Context(), chi.URLParam(r, "id"))
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /accumulators/my?userId=
func (s *Server) myPurchases(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("userId")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	coupons, err := s.repo.MyPurchases(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.MarketplaceResponse{Coupons: coupons, Count: len(coupons)})
}

// POST /accumulators/{id}/purchase
// Debita a carteira antes de gravar a compra; o external_ref do débito é
// idempotente por (wallet, tipo, ref), então uma compra repetida não cobra duas vezes
func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "id")
	var req dto.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	c, err := s.repo.GetCoupon(r.Context(), couponID)
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c.TipsterID == req.UserID {
		writeError(w, http.StatusConflict, "cannot purchase own coupon")
		return
	}
	if !c.OpenForPurchase(s.now()) {
		writeError(w, http.StatusConflict, "coupon closed for purchase")
		return
	}

	if c.PriceCents > 0 {
		err = s.wcli.Debit(r.Context(), req.UserID, c.PriceCents, "coupon:"+couponID)
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			writeError(w, http.StatusPaymentRequired, "insufficient funds")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, "wallet debit failed")
			return
		}
	}

	purchaseID, err := s.repo.InsertPurchase(r.Context(), couponID, req.UserID, c.PriceCents)
	if err == repo.ErrAlreadyPurchased {
		writeError(w, http.StatusConflict, "coupon already purchased")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = s.publ.PublishCouponPurchased(r.Context(), events.CouponPurchased{
		CouponID:   couponID,
		PurchaseID: purchaseID,
		UserID:     req.UserID,
		TipsterID:  c.TipsterID,
		PriceCents: c.PriceCents,
	})

	// Primeira compra do indicado credita o bônus do indicador (best-effort)
	if s.referral != nil {
		if err := s.referral.CreditOnFirstPurchase(r.Context(), req.UserID); err != nil {
			s.log.Warn("referral credit failed", zap.String("userId", req.UserID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, dto.PurchaseResponse{
		PurchaseID: purchaseID,
		CouponID:   couponID,
		PriceCents: c.PriceCents,
		Status:     "PURCHASED",
	})
}

// POST /accumulators/{id}/settle — override manual; a liquidação em si é
// assíncrona, feita pelo settlement-worker ao consumir o evento
func (s *Server) requestSettle(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "id")
	var req dto.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	switch req.Result {
	case domain.ResultWon, domain.ResultLost, domain.ResultRefunded:
	default:
		writeError(w, http.StatusBadRequest, "result must be WON, LOST or REFUNDED")
		return
	}

	c, err := s.repo.GetCoupon(r.Context(), couponID)
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c.Status == domain.StatusSettled || c.Status == domain.StatusCancelled {
		writeError(w, http.StatusConflict, "coupon already settled")
		return
	}

	if err := s.publ.PublishSettleRequested(r.Context(), events.CouponSettleRequested{
		CouponID:    couponID,
		Result:      req.Result,
		RequestedBy: req.RequestedBy,
	}); err != nil {
		writeError(w, http.StatusBadGateway, "publish failed")
		return
	}
	writeJSON(w, http.StatusAccepted, dto.SettleResponse{CouponID: couponID, Status: "SETTLE_REQUESTED"})
}

// DELETE /accumulators/{id} — cancelamento pelo tipster antes do kickoff.
// Estorna todas as compras ainda não estornadas. Como os refs de estorno são
// idempotentes, repetir o DELETE num cupom já CANCELLED só refaz a varredura,
// cobrindo estornos que falharam na chamada anterior.
func (s *Server) cancelCoupon(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "id")

	c, err := s.repo.GetCoupon(r.Context(), couponID)
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if c.Status != domain.StatusCancelled {
		if c.Status != domain.StatusActive {
			writeError(w, http.StatusConflict, "coupon is not active")
			return
		}
		if c.KickedOff(s.now()) {
			writeError(w, http.StatusConflict, "coupon already kicked off")
			return
		}
		if err := s.repo.CancelCoupon(r.Context(), couponID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	refunds, pending, err := s.refundPurchases(r.Context(), couponID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.CancelResponse{
		CouponID:       couponID,
		Refunds:        refunds,
		PendingRefunds: pending,
		Status:         domain.StatusCancelled,
	})
}

// refundPurchases estorna as compras sem estorno do cupom. Devolve quantas
// foram estornadas agora e quantas falharam e seguem pendentes.
func (s *Server) refundPurchases(ctx context.Context, couponID string) (refunds, pending int, err error) {
	purchases, err := s.repo.UnrefundedPurchases(ctx, couponID)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range purchases {
		ref := "cancel:" + couponID + ":" + p.ID
		if err := s.wcli.Refund(ctx, p.UserID, p.PriceCents, ref); err != nil {
			s.log.Error("cancel refund failed",
				zap.String("couponId", couponID), zap.String("purchaseId", p.ID), zap.Error(err))
			pending++
			continue
		}
		if err := s.repo.MarkPurchaseRefunded(ctx, p.ID); err != nil {
			s.log.Error("mark refunded failed", zap.String("purchaseId", p.ID), zap.Error(err))
			pending++
			continue
		}
		refunds++
	}
	return refunds, pending, nil
}

// GET /leaderboard?limit=
// O cache guarda sempre o topo completo e o recorte por limit acontece por
// requisição, para um limit maior não receber uma fatia truncada de antes.
func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > leaderboardCacheTop {
		limit = 20
	}

	var top []domain.Tipster
	cached := false
	if s.cache != nil {
		if ok, _ := s.cache.GetLeaderboard(r.Context(), &top); ok {
			cached = true
		}
	}
	if !cached {
		var err error
		top, err = s.repo.Leaderboard(r.Context(), leaderboardCacheTop)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.cache != nil {
			_ = s.cache.SetLeaderboard(r.Context(), top, leaderboardTTL)
		}
	}

	if limit < len(top) {
		top = top[:limit]
	}
	writeJSON(w, http.StatusOK, dto.LeaderboardResponse{Tipsters: top, Cached: cached})
}

// GET /tipsters/{id}
func (s *Server) getTipster(w http.ResponseWriter, r *http.Request) {
	t, err := s.repo.GetTipster(r.Context(), chi.URLParam(r, "id"))
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "tipster not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// POST /tipsters/{id}/follow
func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	tipsterID := chi.URLParam(r, "id")
	var req dto.FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	err := s.repo.Follow(r.Context(), req.UserID, tipsterID)
	if err == repo.ErrAlreadyFollowing {
		writeError(w, http.StatusConflict, "already following")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "FOLLOWING"})
}

// DELETE /tipsters/{id}/follow
func (s *Server) unfollow(w http.ResponseWriter, r *http.Request) {
	tipsterID := chi.URLParam(r, "id")
	var req dto.FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	err := s.repo.Unfollow(r.Context(), req.UserID, tipsterID)
	if err == repo.ErrNotFound {
		writeError(w, http.StatusNotFound, "not following")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /referrals/my?userId= — devolve o código (criando na primeira chamada)
// e as conversões do usuário
func (s *Server) myReferrals(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("userId")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	ov, err := s.referral.Mine(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// POST /referrals/convert — registra que um usuário novo entrou com um código
func (s *Server) convertReferral(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "code and userId required")
		return
	}
	err := s.referral.RecordConversion(r.Context(), req.UserID, req.Code)
	switch {
	case errors.Is(err, referral.ErrInvalidCode):
		writeError(w, http.StatusNotFound, "invalid code")
	case errors.Is(err, referral.ErrSelfReferral):
		writeError(w, http.StatusConflict, "cannot refer yourself")
	case errors.Is(err, referral.ErrAlreadyConverted):
		writeError(w, http.StatusConflict, "user already converted")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"status": "CONVERTED"})
	}
}
