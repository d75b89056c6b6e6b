// Package quotelock lets an account freeze the current bid/ask pair for a
// bounded window, guaranteeing execution at that rate if the trade lands
// before expiry. Expiry is a plain timestamp compared against the clock on
// read — there is no background timer to cancel or leak.
package quotelock

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zarrin/settlement-engine/internal/metrics"
	"github.com/zarrin/settlement-engine/internal/model"
)

var (
	// ErrLockAlreadyActive is returned by Freeze when the account still
	// holds an unexpired lock. Locks never stack or renew.
	ErrLockAlreadyActive = errors.New("quotelock: account already holds an active lock")

	// ErrNoActiveLock is returned by Consume when no unexpired lock
	// exists for the account.
	ErrNoActiveLock = errors.New("quotelock: no active lock for account")
)

// QuoteSource provides the quote a freeze snapshots. Satisfied by
// *pricefeed.Feed.
type QuoteSource interface {
	CurrentQuote() model.Quote
}

// Manager tracks at most one active lock per account. All transitions
// happen under one mutex; the critical sections are a map access each, so
// contention across accounts is negligible next to settlement work.
type Manager struct {
	source   QuoteSource
	duration time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]model.QuoteLock
}

// NewManager creates a lock manager issuing locks valid for duration.
func NewManager(source QuoteSource, duration time.Duration) *Manager {
	return &Manager{
		source:   source,
		duration: duration,
		now:      time.Now,
		locks:    make(map[string]model.QuoteLock),
	}
}

// Freeze snapshots the latest quote into a new lock for the account.
// Fails with ErrLockAlreadyActive while an unexpired lock exists.
func (m *Manager) Freeze(accountID string) (model.QuoteLock, error) {
	q := m.source.CurrentQuote()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing, had := m.locks[accountID]
	if had && !existing.Expired(now) {
		return model.QuoteLock{}, ErrLockAlreadyActive
	}

	lock := model.QuoteLock{
		AccountID: accountID,
		LockedBid: q.Bid,
		LockedAsk: q.Ask,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.duration),
	}
	m.locks[accountID] = lock
	if !had {
		metrics.ActiveLocks.Inc()
	}

	slog.Info("quote frozen",
		"account", accountID,
		"bid", lock.LockedBid,
		"ask", lock.LockedAsk,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

// ActiveLock returns the account's lock if one is active. Expired locks
// are detected lazily here and dropped.
func (m *Manager) ActiveLock(accountID string) (model.QuoteLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		return model.QuoteLock{}, false
	}
	if lock.Expired(m.now()) {
		delete(m.locks, accountID)
		metrics.ActiveLocks.Dec()
		return model.QuoteLock{}, false
	}
	return lock, true
}

// Consume atomically retrieves and invalidates the account's active lock.
// A consumed or expired lock can never be observed as active again, so a
// freeze can back at most one settlement.
func (m *Manager) Consume(accountID string) (model.QuoteLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		return model.QuoteLock{}, ErrNoActiveLock
	}
	delete(m.locks, accountID)
	metrics.ActiveLocks.Dec()

	if lock.Expired(m.now()) {
		return model.QuoteLock{}, ErrNoActiveLock
	}
	return lock, nil
}
