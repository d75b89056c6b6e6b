package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zarrin/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for accounts and per-account trade history. Writes go to the
// primary store and invalidate the cache; reads check Redis first then
// fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	if err := s.primary.SetAccountStatus(ctx, id, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(id))
	return nil
}

func (s *CachedStore) UpdateBalances(ctx context.Context, id string, rial, mg int64) error {
	if err := s.primary.UpdateBalances(ctx, id, rial, mg); err != nil {
		return err
	}
	// Invalidate; next read re-populates from the source of truth.
	s.rdb.Del(ctx, accountKey(id))
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, tradesKey(t.AccountID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, tradesKey(accountID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.TradesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(accountID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) InsertClaim(ctx context.Context, c *model.TransferClaim) error {
	return s.primary.InsertClaim(ctx, c)
}

func (s *CachedStore) GetClaim(ctx context.Context, id string) (*model.TransferClaim, error) {
	return s.primary.GetClaim(ctx, id)
}

func (s *CachedStore) ClaimsByAccount(ctx context.Context, accountID string) ([]model.TransferClaim, error) {
	return s.primary.ClaimsByAccount(ctx, accountID)
}

func (s *CachedStore) PendingClaims(ctx context.Context) ([]model.TransferClaim, error) {
	return s.primary.PendingClaims(ctx)
}

func (s *CachedStore) SettleClaim(ctx context.Context, id string, status model.ClaimStatus) (*model.TransferClaim, error) {
	return s.primary.SettleClaim(ctx, id, status)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func tradesKey(id string) string { return fmt.Sprintf("trades:%s", id) }
