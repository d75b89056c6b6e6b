package quotelock_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/quotelock"
)

// staticFeed serves a fixed quote.
type staticFeed struct {
	q model.Quote
}

func (f *staticFeed) CurrentQuote() model.Quote { return f.q }

func newManager(d time.Duration) *quotelock.Manager {
	feed := &staticFeed{q: model.Quote{Bid: 43_000_000, Ask: 43_500_000, Seq: 1, Timestamp: time.Now()}}
	return quotelock.NewManager(feed, d)
}

func TestFreeze_SnapshotsQuote(t *testing.T) {
	m := newManager(10 * time.Second)

	lock, err := m.Freeze("acct-1")
	if err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	if lock.LockedBid != 43_000_000 || lock.LockedAsk != 43_500_000 {
		t.Errorf("unexpected locked rates: bid=%d ask=%d", lock.LockedBid, lock.LockedAsk)
	}
	if !lock.ExpiresAt.After(lock.IssuedAt) {
		t.Error("expiry must be after issue time")
	}
}

func TestFreeze_NoStacking(t *testing.T) {
	m := newManager(10 * time.Second)

	if _, err := m.Freeze("acct-1"); err != nil {
		t.Fatalf("first freeze failed: %v", err)
	}
	if _, err := m.Freeze("acct-1"); !errors.Is(err, quotelock.ErrLockAlreadyActive) {
		t.Errorf("expected ErrLockAlreadyActive, got %v", err)
	}

	// A different account is unaffected.
	if _, err := m.Freeze("acct-2"); err != nil {
		t.Errorf("freeze for other account failed: %v", err)
	}
}

func TestConsume_SingleUse(t *testing.T) {
	m := newManager(10 * time.Second)

	if _, err := m.Freeze("acct-1"); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	if _, err := m.Consume("acct-1"); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	// Second consume fails even though the window has not expired.
	if _, err := m.Consume("acct-1"); !errors.Is(err, quotelock.ErrNoActiveLock) {
		t.Errorf("expected ErrNoActiveLock, got %v", err)
	}
	if _, ok := m.ActiveLock("acct-1"); ok {
		t.Error("consumed lock observed as active")
	}
}

func TestConsume_NoLock(t *testing.T) {
	m := newManager(10 * time.Second)

	if _, err := m.Consume("acct-1"); !errors.Is(err, quotelock.ErrNoActiveLock) {
		t.Errorf("expected ErrNoActiveLock, got %v", err)
	}
}

func TestExpiry_Lazy(t *testing.T) {
	m := newManager(20 * time.Millisecond)

	if _, err := m.Freeze("acct-1"); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok := m.ActiveLock("acct-1"); ok {
		t.Error("expired lock observed as active")
	}
	if _, err := m.Consume("acct-1"); !errors.Is(err, quotelock.ErrNoActiveLock) {
		t.Errorf("expected ErrNoActiveLock for expired lock, got %v", err)
	}

	// A fresh freeze is a new lock, not a renewal.
	if _, err := m.Freeze("acct-1"); err != nil {
		t.Errorf("re-freeze after expiry failed: %v", err)
	}
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	m := newManager(10 * time.Second)

	if _, err := m.Freeze("acct-1"); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Consume("acct-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, quotelock.ErrNoActiveLock) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 successful consume, got %d", wins)
	}
}
