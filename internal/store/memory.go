package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zarrin/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	trades   []model.Trade
	claims   map[string]*model.TransferClaim
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		claims:   make(map[string]*model.TransferClaim),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return ErrDuplicateAccount
	}
	for _, existing := range s.accounts {
		if existing.Phone == a.Phone {
			return ErrDuplicateAccount
		}
	}

	// Store a copy to avoid external mutation.
	copy := *a
	s.accounts[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *MemoryStore) SetAccountStatus(_ context.Context, id string, status model.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Status = status
	return nil
}

func (s *MemoryStore) UpdateBalances(_ context.Context, id string, rial, mg int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.BalanceRial = rial
	a.BalanceMg = mg
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) TradesByAccount(_ context.Context, accountID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	// Newest first: the trade log is append-only, so walk backwards.
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].AccountID == accountID {
			result = append(result, s.trades[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertClaim(_ context.Context, c *model.TransferClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *c
	s.claims[c.ID] = &copy
	return nil
}

func (s *MemoryStore) GetClaim(_ context.Context, id string) (*model.TransferClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	copy := *c
	return &copy, nil
}

func (s *MemoryStore) ClaimsByAccount(_ context.Context, accountID string) ([]model.TransferClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TransferClaim
	for _, c := range s.claims {
		if c.AccountID == accountID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) PendingClaims(_ context.Context) ([]model.TransferClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TransferClaim
	for _, c := range s.claims {
		if c.Status == model.ClaimPending {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) SettleClaim(_ context.Context, id string, status model.ClaimStatus) (*model.TransferClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	if c.Status != model.ClaimPending {
		return nil, ErrClaimNotPending
	}
	now := time.Now().UTC()
	c.Status = status
	c.SettledAt = &now

	copy := *c
	return &copy, nil
}
