// Package api provides the HTTP boundary of the settlement engine. All
// monetary quantities cross this boundary as fixed-point integers — rial
// and milligrams — never floating point.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zarrin/settlement-engine/internal/ledger"
	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/pricefeed"
	"github.com/zarrin/settlement-engine/internal/quotelock"
	"github.com/zarrin/settlement-engine/internal/settlement"
	"github.com/zarrin/settlement-engine/internal/store"
	"github.com/zarrin/settlement-engine/internal/transfer"
)

// Server wires the core services behind HTTP handlers.
type Server struct {
	feed   *pricefeed.Feed
	locks  *quotelock.Manager
	ledger *ledger.Ledger
	engine *settlement.Engine
	intake *transfer.Intake
	hub    *WSHub
}

// NewServer creates the HTTP boundary over the core services.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewServer(feed *pricefeed.Feed, locks *quotelock.Manager, lg *ledger.Ledger, engine *settlement.Engine, intake *transfer.Intake, hub *WSHub) *Server {
	return &Server{
		feed:   feed,
		locks:  locks,
		ledger: lg,
		engine: engine,
		intake: intake,
		hub:    hub,
	}
}

// Routes registers all endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/quote", s.GetQuote)

	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{accountID}/balance", s.GetBalance)
	r.Get("/accounts/{accountID}/trades", s.GetTrades)
	r.Get("/accounts/{accountID}/transfers", s.GetTransfers)

	r.Post("/freeze", s.Freeze)
	r.Post("/trade", s.Trade)
	r.Post("/transfers", s.SubmitTransfer)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/halt", s.Halt)
		r.Post("/price", s.AdjustPrice)
		r.Post("/accounts/{accountID}/review", s.ReviewAccount)
		r.Post("/transfers/{claimID}/review", s.ReviewTransfer)
		r.Get("/transfers/pending", s.PendingTransfers)
	})
}

// --- Request/Response types ---

// CreateAccountRequest is the JSON body for account onboarding.
type CreateAccountRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// FreezeRequest is the JSON body for POST /freeze.
type FreezeRequest struct {
	AccountID string `json:"account_id"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	AccountID string `json:"account_id"`
	Side      string `json:"side"`    // "BUY" or "SELL"
	GoldMg    int64  `json:"gold_mg"` // milligrams
	UseLock   bool   `json:"use_lock"`
}

// TransferRequest is the JSON body for POST /transfers.
type TransferRequest struct {
	AccountID  string `json:"account_id"`
	AmountRial int64  `json:"amount_rial"`
	Reference  string `json:"reference"`
}

// ReviewRequest is the JSON body for admin review endpoints.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

// HaltRequest is the JSON body for POST /admin/halt.
type HaltRequest struct {
	Halted bool `json:"halted"`
}

// AdjustPriceRequest is the JSON body for POST /admin/price.
type AdjustPriceRequest struct {
	BidAdjust int64 `json:"bid_adjust"`
	AskAdjust int64 `json:"ask_adjust"`
}

// BalanceResponse reports both balances with explicit unit labels.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	FiatRial  int64  `json:"fiat_rial"`
	GoldMg    int64  `json:"gold_mg"`
}

// --- Handlers ---

// GetQuote handles GET /api/v1/quote
func (s *Server) GetQuote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.CurrentQuote())
}

// CreateAccount handles POST /api/v1/accounts
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Phone == "" {
		writeError(w, "name and phone are required", http.StatusBadRequest)
		return
	}

	account, err := s.ledger.CreateAccount(r.Context(), req.Name, req.Phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetBalance handles GET /api/v1/accounts/{accountID}/balance
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	rial, mg, err := s.ledger.Balances(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID: accountID,
		FiatRial:  rial,
		GoldMg:    mg,
	})
}

// GetTrades handles GET /api/v1/accounts/{accountID}/trades
// Returns the account's settled trades, newest first.
func (s *Server) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.ledger.Trades(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// Freeze handles POST /api/v1/freeze
func (s *Server) Freeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	// The account must exist before a lock slot is claimed for it.
	if _, err := s.ledger.Account(r.Context(), req.AccountID); err != nil {
		writeDomainError(w, err)
		return
	}

	lock, err := s.locks.Freeze(req.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

// Trade handles POST /api/v1/trade
func (s *Server) Trade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	side := model.Side(req.Side)
	if side != model.SideBuy && side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	trade, err := s.engine.ExecuteTrade(r.Context(), req.AccountID, side, req.GoldMg, req.UseLock)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// SubmitTransfer handles POST /api/v1/transfers
func (s *Server) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claim, err := s.intake.SubmitClaim(r.Context(), req.AccountID, req.AmountRial, req.Reference)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// GetTransfers handles GET /api/v1/accounts/{accountID}/transfers
func (s *Server) GetTransfers(w http.ResponseWriter, r *http.Request) {
	claims, err := s.intake.ClaimsByAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if claims == nil {
		claims = []model.TransferClaim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// --- Administrative handlers ---

// Halt handles POST /api/v1/admin/halt
func (s *Server) Halt(w http.ResponseWriter, r *http.Request) {
	var req HaltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.SetHalted(req.Halted)
	writeJSON(w, http.StatusOK, map[string]bool{"halted": req.Halted})
}

// AdjustPrice handles POST /api/v1/admin/price
func (s *Server) AdjustPrice(w http.ResponseWriter, r *http.Request) {
	var req AdjustPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.feed.SetAdjustment(req.BidAdjust, req.AskAdjust)
	writeJSON(w, http.StatusOK, map[string]int64{
		"bid_adjust": req.BidAdjust,
		"ask_adjust": req.AskAdjust,
	})
}

// ReviewAccount handles POST /api/v1/admin/accounts/{accountID}/review
func (s *Server) ReviewAccount(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status := model.StatusRejected
	if req.Approve {
		status = model.StatusApproved
	}
	if err := s.ledger.SetStatus(r.Context(), chi.URLParam(r, "accountID"), status); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.AccountStatus{"status": status})
}

// ReviewTransfer handles POST /api/v1/admin/transfers/{claimID}/review
func (s *Server) ReviewTransfer(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claim, err := s.intake.Reconcile(r.Context(), chi.URLParam(r, "claimID"), req.Approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// PendingTransfers handles GET /api/v1/admin/transfers/pending
func (s *Server) PendingTransfers(w http.ResponseWriter, r *http.Request) {
	claims, err := s.intake.PendingClaims(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if claims == nil {
		claims = []model.TransferClaim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
// Every failure here is pure — nothing was partially applied.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrClaimNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, settlement.ErrTradingHalted):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, settlement.ErrAccountNotApproved):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, transfer.ErrInvalidClaim):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, settlement.ErrLimitExceeded),
		errors.Is(err, ledger.ErrInsufficientFiat),
		errors.Is(err, ledger.ErrInsufficientGold),
		errors.Is(err, quotelock.ErrLockAlreadyActive),
		errors.Is(err, quotelock.ErrNoActiveLock),
		errors.Is(err, transfer.ErrClaimAlreadySettled),
		errors.Is(err, store.ErrDuplicateAccount):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}
