// Package ledger is the authoritative balance store. Every mutation of an
// account's rial or gold balance goes through here, serialized per account
// id — two concurrent settlements against one account can never interleave
// their check-then-mutate steps, while unrelated accounts proceed in
// parallel. There is no global ledger lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/store"
)

var (
	// ErrInsufficientFiat rejects a buy the rial balance cannot cover.
	ErrInsufficientFiat = errors.New("ledger: insufficient rial balance")

	// ErrInsufficientGold rejects a sell the gold balance cannot cover.
	ErrInsufficientGold = errors.New("ledger: insufficient gold balance")

	// ErrInvalidAmount rejects non-positive trade or credit amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Ledger guards balance mutations with one mutex per account id.
type Ledger struct {
	st store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{
		st:    st,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one account, creating it on first
// use. Account locks are never removed; accounts are never deleted.
func (l *Ledger) lockFor(accountID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[accountID] = m
	}
	return m
}

// CreateAccount registers a new account in PENDING status with zero
// balances. Accounts are never deleted afterwards.
func (l *Ledger) CreateAccount(ctx context.Context, name, phone string) (*model.Account, error) {
	a := &model.Account{
		ID:        uuid.New().String(),
		Name:      name,
		Phone:     phone,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.st.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("account created", "account", a.ID, "phone", phone)
	return a, nil
}

// Account returns the account record, balances included.
func (l *Ledger) Account(ctx context.Context, accountID string) (*model.Account, error) {
	return l.st.GetAccount(ctx, accountID)
}

// Accounts lists all accounts, newest first.
func (l *Ledger) Accounts(ctx context.Context) ([]model.Account, error) {
	return l.st.ListAccounts(ctx)
}

// SetStatus transitions an account's onboarding status.
func (l *Ledger) SetStatus(ctx context.Context, accountID string, status model.AccountStatus) error {
	lock := l.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.st.SetAccountStatus(ctx, accountID, status); err != nil {
		return err
	}
	slog.Info("account status changed", "account", accountID, "status", status)
	return nil
}

// Balances returns the current rial and gold balances.
func (l *Ledger) Balances(ctx context.Context, accountID string) (rial, mg int64, err error) {
	a, err := l.st.GetAccount(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	return a.BalanceRial, a.BalanceMg, nil
}

// ApplyTrade is the single atomic mutation point for settlement. Under
// the account's lock it validates both resulting balances stay >= 0,
// writes the new balances, and appends the immutable trade record. On
// any rejection nothing is touched; partial application is never
// observed by other callers of this ledger.
func (l *Ledger) ApplyTrade(ctx context.Context, accountID string, side model.Side, goldMg, fiatRial, rate int64, rateLocked bool) (*model.Trade, error) {
	if goldMg <= 0 || fiatRial <= 0 {
		return nil, ErrInvalidAmount
	}

	lock := l.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	a, err := l.st.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var postRial, postMg int64
	switch side {
	case model.SideBuy:
		if a.BalanceRial < fiatRial {
			return nil, ErrInsufficientFiat
		}
		postRial = a.BalanceRial - fiatRial
		postMg = a.BalanceMg + goldMg
	case model.SideSell:
		if a.BalanceMg < goldMg {
			return nil, ErrInsufficientGold
		}
		postRial = a.BalanceRial + fiatRial
		postMg = a.BalanceMg - goldMg
	default:
		return nil, fmt.Errorf("ledger: unknown side %q", side)
	}

	if err := l.st.UpdateBalances(ctx, accountID, postRial, postMg); err != nil {
		return nil, fmt.Errorf("update balances: %w", err)
	}

	t := &model.Trade{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Side:       side,
		GoldMg:     goldMg,
		FiatRial:   fiatRial,
		Rate:       rate,
		RateLocked: rateLocked,
		PostRial:   postRial,
		PostMg:     postMg,
		Timestamp:  time.Now().UTC(),
	}
	if err := l.st.InsertTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}
	return t, nil
}

// Credit adds reconciled transfer funds to the rial balance, with the
// same per-account atomicity as ApplyTrade.
func (l *Ledger) Credit(ctx context.Context, accountID string, amountRial int64) error {
	if amountRial <= 0 {
		return ErrInvalidAmount
	}

	lock := l.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	a, err := l.st.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := l.st.UpdateBalances(ctx, accountID, a.BalanceRial+amountRial, a.BalanceMg); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}

	slog.Info("ledger credit applied", "account", accountID, "amount_rial", amountRial)
	return nil
}

// Trades returns the account's settled trades, newest first.
func (l *Ledger) Trades(ctx context.Context, accountID string) ([]model.Trade, error) {
	return l.st.TradesByAccount(ctx, accountID)
}
