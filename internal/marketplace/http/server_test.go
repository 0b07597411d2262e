package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/domain"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/dto"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/repo"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/wallet"
	"github.com/radieske/tipster-marketplace-poc/internal/referral"
	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// ---- fakes ----

type fakeRepo struct {
	coupons   map[string]*domain.Coupon
	purchases map[string][]domain.Purchase // couponID -> purchases
	follows   map[string]map[string]bool   // tipsterID -> userID set
	tipsters  map[string]*domain.Tipster
	ranked    []domain.Tipster
	seq       int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		coupons:   map[string]*domain.Coupon{},
		purchases: map[string][]domain.Purchase{},
		follows:   map[string]map[string]bool{},
		tipsters:  map[string]*domain.Tipster{},
	}
}

func (f *fakeRepo) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *fakeRepo) CreateCoupon(_ context.Context, c *domain.Coupon) (string, error) {
	id := f.nextID("c")
	cp := *c
	cp.ID = id
	cp.Status = domain.StatusActive
	cp.Result = domain.ResultPending
	cp.PostedAt = time.Now()
	f.coupons[id] = &cp
	return id, nil
}

func (f *fakeRepo) GetCoupon(_ context.Context, id string) (*domain.Coupon, error) {
	c, ok := f.coupons[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) ListActive(_ context.Context, sport, username string) ([]domain.Coupon, error) {
	var out []domain.Coupon
	for _, c := range f.coupons {
		if c.Status != domain.StatusActive {
			continue
		}
		if sport != "" && c.Sport != sport {
			continue
		}
		if username != "" && c.TipsterName != username {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) PurchasedCouponIDs(_ context.Context, userID string) (map[string]bool, error) {
	out := map[string]bool{}
	for cid, ps := range f.purchases {
		for _, p := range ps {
			if p.UserID == userID {
				out[cid] = true
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertPurchase(_ context.Context, couponID, userID string, priceCents int64) (string, error) {
	for _, p := range f.purchases[couponID] {
		if p.UserID == userID {
			return "", repo.ErrAlreadyPurchased
		}
	}
	id := f.nextID("p")
	f.purchases[couponID] = append(f.purchases[couponID], domain.Purchase{
		ID: id, CouponID: couponID, UserID: userID, PriceCents: priceCents, PurchasedAt: time.Now(),
	})
	f.coupons[couponID].PurchaseCount++
	return id, nil
}

func (f *fakeRepo) MyPurchases(_ context.Context, userID string) ([]domain.Coupon, error) {
	var out []domain.Coupon
	for cid, ps := range f.purchases {
		for _, p := range ps {
			if p.UserID == userID {
				out = append(out, *f.coupons[cid])
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) UnrefundedPurchases(_ context.Context, couponID string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	for _, p := range f.purchases[couponID] {
		if p.RefundedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkPurchaseRefunded(_ context.Context, purchaseID string) error {
	for cid := range f.purchases {
		for i, p := range f.purchases[cid] {
			if p.ID == purchaseID && p.RefundedAt == nil {
				now := time.Now()
				f.purchases[cid][i].RefundedAt = &now
				return nil
			}
		}
	}
	return repo.ErrNotFound
}

func (f *fakeRepo) CancelCoupon(_ context.Context, couponID string) error {
	c, ok := f.coupons[couponID]
	if !ok || c.Status == domain.StatusCancelled {
		return repo.ErrNotFound
	}
	c.Status = domain.StatusCancelled
	c.Result = domain.ResultRefunded
	return nil
}

func (f *fakeRepo) Follow(_ context.Context, userID, tipsterID string) error {
	if f.follows[tipsterID] == nil {
		f.follows[tipsterID] = map[string]bool{}
	}
	if f.follows[tipsterID][userID] {
		return repo.ErrAlreadyFollowing
	}
	f.follows[tipsterID][userID] = true
	return nil
}

func (f *fakeRepo) Unfollow(_ context.Context, userID, tipsterID string) error {
	if !f.follows[tipsterID][userID] {
		return repo.ErrNotFound
	}
	delete(f.follows[tipsterID], userID)
	return nil
}

func (f *fakeRepo) GetTipster(_ context.Context, id string) (*domain.Tipster, error) {
	t, ok := f.tipsters[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) Leaderboard(_ context.Context, limit int) ([]domain.Tipster, error) {
	if limit > 0 && limit < len(f.ranked) {
		return f.ranked[:limit], nil
	}
	return f.ranked, nil
}

type fakeWallet struct {
	balances    map[string]int64
	debits      []string // external refs, na ordem
	refunds     []string
	failRefunds map[string]int // próximos N estornos do usuário falham
}

func (f *fakeWallet) Debit(_ context.Context, userID string, cents int64, ref string) error {
	if f.balances[userID] < cents {
		return wallet.ErrInsufficientFunds
	}
	f.balances[userID] -= cents
	f.debits = append(f.debits, ref)
	return nil
}

func (f *fakeWallet) Refund(_ context.Context, userID string, cents int64, ref string) error {
	if f.failRefunds[userID] > 0 {
		f.failRefunds[userID]--
		return errors.New("wallet unavailable")
	}
	f.balances[userID] += cents
	f.refunds = append(f.refunds, ref)
	return nil
}

type fakePublisher struct {
	purchased []events.CouponPurchased
	settles   []events.CouponSettleRequested
}

func (f *fakePublisher) PublishCouponPurchased(_ context.Context, e events.CouponPurchased) error {
	f.purchased = append(f.purchased, e)
	return nil
}

func (f *fakePublisher) PublishSettleRequested(_ context.Context, e events.CouponSettleRequested) error {
	f.settles = append(f.settles, e)
	return nil
}

type fakeCache struct {
	data []domain.Tipster
	has  bool
	sets int
}

func (f *fakeCache) GetLeaderboard(_ context.Context, dst any) (bool, error) {
	if !f.has {
		return false, nil
	}
	b, _ := json.Marshal(f.data)
	return true, json.Unmarshal(b, dst)
}

func (f *fakeCache) SetLeaderboard(_ context.Context, v any, _ time.Duration) error {
	b, _ := json.Marshal(v)
	_ = json.Unmarshal(b, &f.data)
	f.has = true
	f.sets++
	return nil
}

// fake persistence do programa de indicação (mesmo contrato do postgres)
type fakeRefRepo struct {
	codes  map[string]string // userID -> code
	owners map[string]string // code -> userID
	convs  map[string]*referral.Conversion
}

func newFakeRefRepo() *fakeRefRepo {
	return &fakeRefRepo{codes: map[string]string{}, owners: map[string]string{}, convs: map[string]*referral.Conversion{}}
}

func (f *fakeRefRepo) GetOrCreateCode(_ context.Context, userID string, gen func() (string, error)) (string, error) {
	if c, ok := f.codes[userID]; ok {
		return c, nil
	}
	c, err := gen()
	if err != nil {
		return "", err
	}
	f.codes[userID] = c
	f.owners[c] = userID
	return c, nil
}

func (f *fakeRefRepo) OwnerOfCode(_ context.Context, code string) (string, error) {
	u, ok := f.owners[code]
	if !ok {
		return "", referral.ErrInvalidCode
	}
	return u, nil
}

func (f *fakeRefRepo) InsertConversion(_ context.Context, referrerID, referredUserID, code string, rewardCents int64) error {
	if _, ok := f.convs[referredUserID]; ok {
		return referral.ErrAlreadyConverted
	}
	f.convs[referredUserID] = &referral.Conversion{
		ReferrerID: referrerID, ReferredUserID: referredUserID, Code: code, RewardCents: rewardCents,
	}
	return nil
}

func (f *fakeRefRepo) ClaimUncredited(_ context.Context, referredUserID string, at time.Time) (string, int64, bool, error) {
	c, ok := f.convs[referredUserID]
	if !ok || c.RewardCredited {
		return "", 0, false, nil
	}
	c.RewardCredited = true
	c.FirstPurchaseAt = &at
	return c.ReferrerID, c.RewardCents, true, nil
}

func (f *fakeRefRepo) ConversionsByReferrer(_ context.Context, referrerID string) ([]referral.Conversion, error) {
	var out []referral.Conversion
	for _, c := range f.convs {
		if c.ReferrerID == referrerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeCreditor struct{ credits map[string]int64 }

func (f *fakeCreditor) Credit(_ context.Context, userID string, cents int64, _ string) error {
	if f.credits == nil {
		f.credits = map[string]int64{}
	}
	f.credits[userID] += cents
	return nil
}

// ---- harness ----

type harness struct {
	srv      *Server
	repo     *fakeRepo
	wallet   *fakeWallet
	publ     *fakePublisher
	cache    *fakeCache
	refRepo  *fakeRefRepo
	creditor *fakeCreditor
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     newFakeRepo(),
		wallet:   &fakeWallet{balances: map[string]int64{}},
		publ:     &fakePublisher{},
		cache:    &fakeCache{},
		refRepo:  newFakeRefRepo(),
		creditor: &fakeCreditor{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	ref := referral.NewService(h.refRepo, h.creditor, 500)
	h.srv = NewServer(zap.NewNop(), h.repo, h.wallet, h.publ, h.cache, ref, nil)
	h.srv.now = func() time.Time { return h.now }
	return h
}

func (h *harness) addCoupon(tipsterID string, priceCents int64, kickoff time.Time) string {
	id, _ := h.repo.CreateCoupon(context.Background(), &domain.Coupon{
		TipsterID:    tipsterID,
		TipsterName:  tipsterID,
		Sport:        "football",
		Title:        "tripla do dia",
		CombinedOdds: 3.6,
		StakeCents:   1000,
		PriceCents:   priceCents,
		Legs: []domain.Leg{{
			FixtureID: "fx-1", Market: "1x2", SelectedOutcome: "home",
			SelectionOdds: 3.6, MatchDate: kickoff,
		}},
	})
	return id
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

// ---- tests ----

func TestMarketplaceExcludesKickedOffAndPurchased(t *testing.T) {
	h := newHarness(t)
	open := h.addCoupon("tip-1", 500, h.now.Add(2*time.Hour))
	h.addCoupon("tip-1", 500, h.now.Add(-5*time.Minute)) // já começou
	bought := h.addCoupon("tip-2", 500, h.now.Add(3*time.Hour))
	_, err := h.repo.InsertPurchase(context.Background(), bought, "user-9", 500)
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/accumulators/marketplace?userId=user-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.MarketplaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, open, resp.Coupons[0].ID)
}

func TestMarketplaceIncludeAllBypassesFilters(t *testing.T) {
	h := newHarness(t)
	h.addCoupon("tip-1", 500, h.now.Add(-time.Hour))
	h.addCoupon("tip-1", 500, h.now.Add(time.Hour))

	rec := h.do(http.MethodGet, "/accumulators/marketplace?includeAll=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.MarketplaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestCreateCouponDerivesCombinedOdds(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/accumulators", dto.CreateCouponRequest{
		TipsterID:  "tip-1",
		Sport:      "football",
		Title:      "dupla",
		StakeCents: 1000,
		Legs: []dto.LegRequest{
			{FixtureID: "fx-1", Market: "1x2", SelectedOutcome: "home", SelectionOdds: 2.0, MatchDate: h.now.Add(time.Hour)},
			{FixtureID: "fx-2", Market: "btts", SelectedOutcome: "yes", SelectionOdds: 1.5, MatchDate: h.now.Add(2 * time.Hour)},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp dto.CreateCouponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	c, err := h.repo.GetCoupon(context.Background(), resp.CouponID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.CombinedOdds, 1e-9)
}

func TestCreateCouponRejectsPastKickoff(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/accumulators", dto.CreateCouponRequest{
		TipsterID:  "tip-1",
		Sport:      "football",
		StakeCents: 1000,
		Legs: []dto.LegRequest{
			{FixtureID: "fx-1", Market: "1x2", SelectedOutcome: "home", SelectionOdds: 2.0, MatchDate: h.now.Add(-time.Minute)},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseDebitsWalletAndPublishes(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 1000
	id := h.addCoupon("tip-1", 700, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, int64(300), h.wallet.balances["user-1"])
	require.Len(t, h.publ.purchased, 1)
	assert.Equal(t, id, h.publ.purchased[0].CouponID)
	assert.Equal(t, []string{"coupon:" + id}, h.wallet.debits)
}

func TestPurchaseInsufficientFundsIs402(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 100
	id := h.addCoupon("tip-1", 700, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Empty(t, h.publ.purchased)
}

func TestPurchaseOwnCouponRejected(t *testing.T) {
	h := newHarness(t)
	id := h.addCoupon("tip-1", 0, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "tip-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPurchaseAfterKickoffRejected(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 1000
	id := h.addCoupon("tip-1", 500, h.now.Add(-time.Minute))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(1000), h.wallet.balances["user-1"])
}

func TestDuplicatePurchaseIs409(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 2000
	id := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))

	first := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	require.Equal(t, http.StatusCreated, first.Code)
	second := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Len(t, h.publ.purchased, 1)
}

func TestFreeCouponSkipsWallet(t *testing.T) {
	h := newHarness(t)
	id := h.addCoupon("tip-1", 0, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, h.wallet.debits)
	assert.Len(t, h.publ.purchased, 1)
}

func TestFirstPurchaseCreditsReferrer(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["novato"] = 5000

	// indicador gera código; novato converte
	code, err := h.refRepo.GetOrCreateCode(context.Background(), "veterano", referral.NewCode)
	require.NoError(t, err)
	rec := h.do(http.MethodPost, "/referrals/convert", dto.ConvertReferralRequest{Code: code, UserID: "novato"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// primeira compra credita o bônus; segunda não
	id1 := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))
	id2 := h.addCoupon("tip-2", 500, h.now.Add(time.Hour))
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id1+"/purchase", dto.PurchaseRequest{UserID: "novato"}).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id2+"/purchase", dto.PurchaseRequest{UserID: "novato"}).Code)

	assert.Equal(t, int64(500), h.creditor.credits["veterano"])
}

func TestSelfReferralRejected(t *testing.T) {
	h := newHarness(t)
	code, err := h.refRepo.GetOrCreateCode(context.Background(), "veterano", referral.NewCode)
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/referrals/convert", dto.ConvertReferralRequest{Code: code, UserID: "veterano"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSettleRequestPublishesEvent(t *testing.T) {
	h := newHarness(t)
	id := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/settle", dto.SettleRequest{Result: "WON", RequestedBy: "admin"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, h.publ.settles, 1)
	assert.Equal(t, "WON", h.publ.settles[0].Result)
}

func TestSettleRequestRejectsBadResult(t *testing.T) {
	h := newHarness(t)
	id := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))

	rec := h.do(http.MethodPost, "/accumulators/"+id+"/settle", dto.SettleRequest{Result: "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.publ.settles)
}

func TestCancelRefundsAllPurchasers(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 500
	h.wallet.balances["user-2"] = 500
	id := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"}).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-2"}).Code)

	rec := h.do(http.MethodDelete, "/accumulators/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Refunds)
	assert.Equal(t, int64(500), h.wallet.balances["user-1"])
	assert.Equal(t, int64(500), h.wallet.balances["user-2"])

	// compras marcadas como estornadas, não estorna em dobro
	left, err := h.repo.UnrefundedPurchases(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCancelRetryCompletesFailedRefunds(t *testing.T) {
	h := newHarness(t)
	h.wallet.balances["user-1"] = 500
	h.wallet.balances["user-2"] = 500
	id := h.addCoupon("tip-1", 500, h.now.Add(time.Hour))
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-1"}).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/accumulators/"+id+"/purchase", dto.PurchaseRequest{UserID: "user-2"}).Code)
	h.wallet.failRefunds = map[string]int{"user-2": 1}

	first := h.do(http.MethodDelete, "/accumulators/"+id, nil)
	require.Equal(t, http.StatusOK, first.Code)
	var r1 dto.CancelResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r1))
	assert.Equal(t, 1, r1.Refunds)
	assert.Equal(t, 1, r1.PendingRefunds)
	assert.Equal(t, int64(0), h.wallet.balances["user-2"])

	// carteira voltou: repetir o DELETE estorna só quem ficou pendente
	retry := h.do(http.MethodDelete, "/accumulators/"+id, nil)
	require.Equal(t, http.StatusOK, retry.Code)
	var r2 dto.CancelResponse
	require.NoError(t, json.Unmarshal(retry.Body.Bytes(), &r2))
	assert.Equal(t, 1, r2.Refunds)
	assert.Equal(t, 0, r2.PendingRefunds)
	assert.Equal(t, int64(500), h.wallet.balances["user-1"])
	assert.Equal(t, int64(500), h.wallet.balances["user-2"])

	left, err := h.repo.UnrefundedPurchases(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, left)

	// novo DELETE é um no-op, sem estorno em dobro
	third := h.do(http.MethodDelete, "/accumulators/"+id, nil)
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, int64(500), h.wallet.balances["user-2"])
}

func TestCancelAfterKickoffRejected(t *testing.T) {
	h := newHarness(t)
	id := h.addCoupon("tip-1", 500, h.now.Add(-time.Minute))

	rec := h.do(http.MethodDelete, "/accumulators/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	c, err := h.repo.GetCoupon(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, c.Status)
}

func TestLeaderboardUsesCacheOnSecondHit(t *testing.T) {
	h := newHarness(t)
	h.repo.ranked = []domain.Tipster{
		{ID: "tip-1", Username: "ana", LeaderboardRank: 1},
		{ID: "tip-2", Username: "bia", LeaderboardRank: 2},
	}

	first := h.do(http.MethodGet, "/leaderboard", nil)
	require.Equal(t, http.StatusOK, first.Code)
	var r1 dto.LeaderboardResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r1))
	assert.False(t, r1.Cached)

	second := h.do(http.MethodGet, "/leaderboard", nil)
	var r2 dto.LeaderboardResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &r2))
	assert.True(t, r2.Cached)
	assert.Equal(t, 1, h.cache.sets)
	require.Len(t, r2.Tipsters, 2)
	assert.Equal(t, "ana", r2.Tipsters[0].Username)
}

func TestLeaderboardCachesFullTopAndSlicesPerRequest(t *testing.T) {
	h := newHarness(t)
	h.repo.ranked = []domain.Tipster{
		{ID: "tip-1", Username: "ana", LeaderboardRank: 1},
		{ID: "tip-2", Username: "bia", LeaderboardRank: 2},
		{ID: "tip-3", Username: "caio", LeaderboardRank: 3},
	}

	// primeiro hit pede só 1, mas o cache guarda o topo inteiro
	first := h.do(http.MethodGet, "/leaderboard?limit=1", nil)
	require.Equal(t, http.StatusOK, first.Code)
	var r1 dto.LeaderboardResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r1))
	require.Len(t, r1.Tipsters, 1)

	// um limit maior servido do cache não pode vir truncado pelo anterior
	second := h.do(http.MethodGet, "/leaderboard?limit=3", nil)
	require.Equal(t, http.StatusOK, second.Code)
	var r2 dto.LeaderboardResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &r2))
	assert.True(t, r2.Cached)
	require.Len(t, r2.Tipsters, 3)
	assert.Equal(t, "caio", r2.Tipsters[2].Username)
	assert.Equal(t, 1, h.cache.sets)
}

func TestCreateCouponRejectsUnknownMarket(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/accumulators", dto.CreateCouponRequest{
		TipsterID:  "tip-1",
		Sport:      "football",
		StakeCents: 1000,
		Legs: []dto.LegRequest{
			{FixtureID: "fx-1", Market: "correct_score", SelectedOutcome: "2-1", SelectionOdds: 8.0, MatchDate: h.now.Add(time.Hour)},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	outcome := h.do(http.MethodPost, "/accumulators", dto.CreateCouponRequest{
		TipsterID:  "tip-1",
		Sport:      "football",
		StakeCents: 1000,
		Legs: []dto.LegRequest{
			{FixtureID: "fx-1", Market: "1x2", SelectedOutcome: "maybe", SelectionOdds: 2.0, MatchDate: h.now.Add(time.Hour)},
		},
	})
	assert.Equal(t, http.StatusBadRequest, outcome.Code)
}

func TestFollowUnfollowLifecycle(t *testing.T) {
	h := newHarness(t)
	h.repo.tipsters["tip-1"] = &domain.Tipster{ID: "tip-1", Username: "ana"}

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/tipsters/tip-1/follow", dto.FollowRequest{UserID: "user-1"}).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/tipsters/tip-1/follow", dto.FollowRequest{UserID: "user-1"}).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/tipsters/tip-1/follow", dto.FollowRequest{UserID: "user-1"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/tipsters/tip-1/follow", dto.FollowRequest{UserID: "user-1"}).Code)
}

func TestMyReferralsCreatesCodeOnFirstCall(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/referrals/my?userId=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ov referral.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Len(t, ov.Code, 8)

	again := h.do(http.MethodGet, "/referrals/my?userId=user-1", nil)
	var ov2 referral.Overview
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &ov2))
	assert.Equal(t, ov.Code, ov2.Code)
}
