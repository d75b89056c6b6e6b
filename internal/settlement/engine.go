// Package settlement validates and executes buy/sell requests against the
// live price feed or an active quote lock, atomically against the ledger.
// The immutable Trade record returned on success is the system's output.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zarrin/settlement-engine/internal/ledger"
	"github.com/zarrin/settlement-engine/internal/metrics"
	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/quotelock"
)

var (
	// ErrTradingHalted is the global kill-switch rejection. Transient;
	// callers may retry once the halt clears.
	ErrTradingHalted = errors.New("settlement: trading is halted")

	// ErrInvalidAmount rejects non-positive amounts, or amounts so small
	// the fiat leg truncates to zero.
	ErrInvalidAmount = errors.New("settlement: trade amount must be positive")

	// ErrLimitExceeded rejects trades above the per-trade cap.
	ErrLimitExceeded = errors.New("settlement: per-trade limit exceeded")

	// ErrAccountNotApproved rejects trades from accounts that have not
	// completed onboarding.
	ErrAccountNotApproved = errors.New("settlement: account is not approved for trading")
)

// mithqalGrams is the exact unit conversion: 1 mithqal = 4.3318 g.
// A fixed rational constant, never a floating approximation, so repeated
// trades cannot accumulate representation drift.
var mithqalGrams = decimal.RequireFromString("4.3318")

// FiatForGold converts a gold amount in milligrams at a rial-per-mithqal
// rate into rial, truncated toward zero (truncation favors the account
// holder on the debit side).
func FiatForGold(goldMg, rate int64) int64 {
	grams := decimal.NewFromInt(goldMg).Shift(-3)
	fiat := grams.Mul(decimal.NewFromInt(rate)).Div(mithqalGrams)
	return fiat.Truncate(0).IntPart()
}

// QuoteSource provides the live quote for unlocked trades. Satisfied by
// *pricefeed.Feed.
type QuoteSource interface {
	CurrentQuote() model.Quote
}

// Engine executes trades. Safe for concurrent use; per-account
// serialization lives in the ledger, the halt flag is a single atomic.
type Engine struct {
	ledger     *ledger.Ledger
	locks      *quotelock.Manager
	feed       QuoteSource
	maxTradeMg int64

	halted atomic.Bool
}

// NewEngine creates a settlement engine. maxTradeMg caps a single trade's
// gold amount; zero disables the cap.
func NewEngine(lg *ledger.Ledger, locks *quotelock.Manager, feed QuoteSource, maxTradeMg int64) *Engine {
	return &Engine{
		ledger:     lg,
		locks:      locks,
		feed:       feed,
		maxTradeMg: maxTradeMg,
	}
}

// SetHalted toggles the global trading halt. Settable only through the
// administrative API; every settlement observes it before touching any
// account state.
func (e *Engine) SetHalted(halted bool) {
	e.halted.Store(halted)
	if halted {
		metrics.TradingHalted.Set(1)
	} else {
		metrics.TradingHalted.Set(0)
	}
	slog.Warn("trading halt toggled", "halted", halted)
}

// Halted reports the current halt state.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// ExecuteTrade settles one buy or sell for an account.
//
// With useLock the account's active quote lock is consumed and its rate
// honored; without one the request fails — there is no silent fallback to
// the live price, so a caller can never believe it had rate protection
// when it did not. A consumed lock stays burned even if the ledger then
// rejects the trade: restoring it would let a caller retry against a
// price move at the old rate.
func (e *Engine) ExecuteTrade(ctx context.Context, accountID string, side model.Side, goldMg int64, useLock bool) (*model.Trade, error) {
	start := time.Now()

	if e.halted.Load() {
		metrics.TradeRejections.WithLabelValues("halted").Inc()
		return nil, ErrTradingHalted
	}

	if side != model.SideBuy && side != model.SideSell {
		metrics.TradeRejections.WithLabelValues("validation").Inc()
		return nil, ErrInvalidAmount
	}
	if goldMg <= 0 {
		metrics.TradeRejections.WithLabelValues("validation").Inc()
		return nil, ErrInvalidAmount
	}
	if e.maxTradeMg > 0 && goldMg > e.maxTradeMg {
		metrics.TradeRejections.WithLabelValues("limit").Inc()
		return nil, ErrLimitExceeded
	}

	account, err := e.ledger.Account(ctx, accountID)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("account").Inc()
		return nil, err
	}
	if account.Status != model.StatusApproved {
		metrics.TradeRejections.WithLabelValues("account").Inc()
		return nil, ErrAccountNotApproved
	}

	var bid, ask int64
	if useLock {
		lock, err := e.locks.Consume(accountID)
		if err != nil {
			metrics.TradeRejections.WithLabelValues("lock").Inc()
			return nil, err
		}
		bid, ask = lock.LockedBid, lock.LockedAsk
	} else {
		q := e.feed.CurrentQuote()
		bid, ask = q.Bid, q.Ask
	}

	// Buys execute at the ask, sells at the bid.
	rate := ask
	if side == model.SideSell {
		rate = bid
	}

	fiat := FiatForGold(goldMg, rate)
	if fiat <= 0 {
		metrics.TradeRejections.WithLabelValues("validation").Inc()
		return nil, ErrInvalidAmount
	}

	trade, err := e.ledger.ApplyTrade(ctx, accountID, side, goldMg, fiat, rate, useLock)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("balance").Inc()
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("trade settled",
		"trade_id", trade.ID,
		"account", accountID,
		"side", side,
		"gold_mg", goldMg,
		"fiat_rial", fiat,
		"rate", rate,
		"locked", useLock,
	)
	return trade, nil
}
