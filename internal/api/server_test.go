package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zarrin/settlement-engine/internal/api"
	"github.com/zarrin/settlement-engine/internal/ledger"
	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/pricefeed"
	"github.com/zarrin/settlement-engine/internal/quotelock"
	"github.com/zarrin/settlement-engine/internal/settlement"
	"github.com/zarrin/settlement-engine/internal/store"
	"github.com/zarrin/settlement-engine/internal/transfer"
)

type testEnv struct {
	store  *store.MemoryStore
	ledger *ledger.Ledger
	locks  *quotelock.Manager
	engine *settlement.Engine
	router chi.Router
}

// newTestEnv wires the full service stack over an in-memory store with a
// static feed (the tick loop is never started, so quotes stay put).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	lg := ledger.New(ms)

	feed := pricefeed.New(pricefeed.Config{
		InitialBid: 43_000_000,
		InitialAsk: 43_500_000,
		Interval:   time.Hour,
		MaxStepBp:  200,
		MinSpread:  50_000,
	})
	locks := quotelock.NewManager(feed, 10*time.Second)
	engine := settlement.NewEngine(lg, locks, feed, 500_000)
	intake := transfer.NewIntake(ms, lg)

	srv := api.NewServer(feed, locks, lg, engine, intake, nil)
	r := chi.NewRouter()
	r.Route("/api/v1", srv.Routes)

	return &testEnv{store: ms, ledger: lg, locks: locks, engine: engine, router: r}
}

// seedApproved creates an approved account with balances directly in the
// store, bypassing the onboarding flow.
func (e *testEnv) seedApproved(t *testing.T, id string, rial, mg int64) {
	t.Helper()
	a := &model.Account{
		ID:          id,
		Name:        "test account",
		Phone:       "0912" + id,
		Status:      model.StatusApproved,
		BalanceRial: rial,
		BalanceMg:   mg,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// --- Onboarding ---

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/accounts", api.CreateAccountRequest{
		Name:  "Maryam",
		Phone: "09121234567",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var account model.Account
	json.Unmarshal(w.Body.Bytes(), &account)

	if account.ID == "" {
		t.Error("expected non-empty account id")
	}
	if account.Status != model.StatusPending {
		t.Errorf("new account should be pending, got %s", account.Status)
	}
	if account.BalanceRial != 0 || account.BalanceMg != 0 {
		t.Errorf("new account should start empty, got rial=%d mg=%d", account.BalanceRial, account.BalanceMg)
	}
}

func TestCreateAccount_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/accounts", api.CreateAccountRequest{Name: "Maryam"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing phone, got %d", w.Code)
	}
}

func TestCreateAccount_DuplicatePhone(t *testing.T) {
	env := newTestEnv(t)

	req := api.CreateAccountRequest{Name: "Maryam", Phone: "09121234567"}
	if w := env.post(t, "/api/v1/accounts", req); w.Code != http.StatusCreated {
		t.Fatalf("first onboarding failed: %d", w.Code)
	}
	if w := env.post(t, "/api/v1/accounts", req); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate phone, got %d", w.Code)
	}
}

// --- Quote ---

func TestGetQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/api/v1/quote")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var q model.Quote
	json.Unmarshal(w.Body.Bytes(), &q)

	if q.Bid != 43_000_000 || q.Ask != 43_500_000 {
		t.Errorf("unexpected quote: bid=%d ask=%d", q.Bid, q.Ask)
	}
	if q.Ask <= q.Bid {
		t.Error("ask should exceed bid")
	}
}

// --- Trading ---

func TestTrade_LockedBuy(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	w := env.post(t, "/api/v1/freeze", api.FreezeRequest{AccountID: "acct-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("freeze failed: %d %s", w.Code, w.Body.String())
	}
	var lock model.QuoteLock
	json.Unmarshal(w.Body.Bytes(), &lock)
	if lock.LockedAsk != 43_500_000 {
		t.Errorf("lock should snapshot the ask, got %d", lock.LockedAsk)
	}

	w = env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "BUY",
		GoldMg:    10,
		UseLock:   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("trade failed: %d %s", w.Code, w.Body.String())
	}

	var trade model.Trade
	json.Unmarshal(w.Body.Bytes(), &trade)

	if trade.FiatRial != 100_420 {
		t.Errorf("expected fiat 100420, got %d", trade.FiatRial)
	}
	if trade.PostRial != 899_580 || trade.PostMg != 10 {
		t.Errorf("unexpected post balances: rial=%d mg=%d", trade.PostRial, trade.PostMg)
	}
	if !trade.RateLocked {
		t.Error("trade should be marked rate-locked")
	}

	// The balance endpoint agrees with the trade record.
	w = env.get(t, "/api/v1/accounts/acct-1/balance")
	if w.Code != http.StatusOK {
		t.Fatalf("balance failed: %d", w.Code)
	}
	var bal api.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.FiatRial != 899_580 || bal.GoldMg != 10 {
		t.Errorf("unexpected balance: %+v", bal)
	}
}

func TestTrade_UnapprovedAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/accounts", api.CreateAccountRequest{Name: "Maryam", Phone: "09121234567"})
	var account model.Account
	json.Unmarshal(w.Body.Bytes(), &account)

	w = env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: account.ID,
		Side:      "BUY",
		GoldMg:    10,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for pending account, got %d", w.Code)
	}
}

func TestTrade_NoActiveLock(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	w := env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "BUY",
		GoldMg:    10,
		UseLock:   true,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 when no lock is active, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrade_InvalidSide(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	w := env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "HOLD",
		GoldMg:    10,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid side, got %d", w.Code)
	}
}

func TestTrade_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 100, 0)

	w := env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "BUY",
		GoldMg:    10,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for insufficient funds, got %d", w.Code)
	}
}

func TestTrade_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "ghost",
		Side:      "BUY",
		GoldMg:    10,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Freeze ---

func TestFreeze_NoStacking(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	if w := env.post(t, "/api/v1/freeze", api.FreezeRequest{AccountID: "acct-1"}); w.Code != http.StatusCreated {
		t.Fatalf("first freeze failed: %d", w.Code)
	}
	if w := env.post(t, "/api/v1/freeze", api.FreezeRequest{AccountID: "acct-1"}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for stacked freeze, got %d", w.Code)
	}
}

func TestFreeze_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/freeze", api.FreezeRequest{AccountID: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Transfers ---

func TestTransferFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 0, 0)

	w := env.post(t, "/api/v1/transfers", api.TransferRequest{
		AccountID:  "acct-1",
		AmountRial: 1_000_000,
		Reference:  "SHEBA-42",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d %s", w.Code, w.Body.String())
	}
	var claim model.TransferClaim
	json.Unmarshal(w.Body.Bytes(), &claim)
	if claim.Status != model.ClaimPending {
		t.Errorf("expected pending claim, got %s", claim.Status)
	}

	// The claim shows up in the admin queue.
	w = env.get(t, "/api/v1/admin/transfers/pending")
	var pending []model.TransferClaim
	json.Unmarshal(w.Body.Bytes(), &pending)
	if len(pending) != 1 || pending[0].ID != claim.ID {
		t.Fatalf("expected claim in pending queue, got %+v", pending)
	}

	// Approval credits the account.
	w = env.post(t, "/api/v1/admin/transfers/"+claim.ID+"/review", api.ReviewRequest{Approve: true})
	if w.Code != http.StatusOK {
		t.Fatalf("review failed: %d %s", w.Code, w.Body.String())
	}

	var bal api.BalanceResponse
	w = env.get(t, "/api/v1/accounts/acct-1/balance")
	json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.FiatRial != 1_000_000 {
		t.Errorf("expected credit of 1000000, got %d", bal.FiatRial)
	}

	// Replaying the approval is a conflict, not a second credit.
	w = env.post(t, "/api/v1/admin/transfers/"+claim.ID+"/review", api.ReviewRequest{Approve: true})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on replayed review, got %d", w.Code)
	}
	w = env.get(t, "/api/v1/accounts/acct-1/balance")
	json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.FiatRial != 1_000_000 {
		t.Errorf("replayed review changed balance to %d", bal.FiatRial)
	}
}

// --- Admin ---

func TestHalt(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	if w := env.post(t, "/api/v1/admin/halt", api.HaltRequest{Halted: true}); w.Code != http.StatusOK {
		t.Fatalf("halt failed: %d", w.Code)
	}

	w := env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "BUY",
		GoldMg:    10,
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while halted, got %d", w.Code)
	}

	if w := env.post(t, "/api/v1/admin/halt", api.HaltRequest{Halted: false}); w.Code != http.StatusOK {
		t.Fatalf("unhalt failed: %d", w.Code)
	}
	w = env.post(t, "/api/v1/trade", api.TradeRequest{
		AccountID: "acct-1",
		Side:      "BUY",
		GoldMg:    10,
	})
	if w.Code != http.StatusOK {
		t.Errorf("trade after unhalt failed: %d %s", w.Code, w.Body.String())
	}
}

func TestReviewAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/accounts", api.CreateAccountRequest{Name: "Maryam", Phone: "09121234567"})
	var account model.Account
	json.Unmarshal(w.Body.Bytes(), &account)

	w = env.post(t, "/api/v1/admin/accounts/"+account.ID+"/review", api.ReviewRequest{Approve: true})
	if w.Code != http.StatusOK {
		t.Fatalf("review failed: %d %s", w.Code, w.Body.String())
	}

	got, err := env.ledger.Account(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
}

func TestAdjustPrice(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/admin/price", api.AdjustPriceRequest{
		BidAdjust: 100_000,
		AskAdjust: 100_000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("adjust failed: %d %s", w.Code, w.Body.String())
	}
}

// --- History ---

func TestGetTrades(t *testing.T) {
	env := newTestEnv(t)
	env.seedApproved(t, "acct-1", 1_000_000, 0)

	// Empty history is an empty array, not null.
	w := env.get(t, "/api/v1/accounts/acct-1/trades")
	if w.Code != http.StatusOK {
		t.Fatalf("trades failed: %d", w.Code)
	}
	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) == "null" {
		t.Error("empty history should encode as [], got null")
	}

	env.post(t, "/api/v1/trade", api.TradeRequest{AccountID: "acct-1", Side: "BUY", GoldMg: 10})

	w = env.get(t, "/api/v1/accounts/acct-1/trades")
	var trades []model.Trade
	json.Unmarshal(w.Body.Bytes(), &trades)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Side != model.SideBuy || trades[0].GoldMg != 10 {
		t.Errorf("unexpected trade record: %+v", trades[0])
	}
}

func TestGetBalance_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/api/v1/accounts/ghost/balance")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
