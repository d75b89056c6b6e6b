// Package store defines the persistence interface for the settlement
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/zarrin/settlement-engine/internal/model"
)

var (
	// ErrAccountNotFound is returned when no account exists for an id.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrDuplicateAccount is returned when an account id or phone is
	// already registered.
	ErrDuplicateAccount = errors.New("store: account already exists")

	// ErrClaimNotFound is returned when no transfer claim exists for an id.
	ErrClaimNotFound = errors.New("store: transfer claim not found")

	// ErrClaimNotPending is returned by SettleClaim when the claim has
	// already left the PENDING state. Callers rely on this to keep
	// reconciliation idempotent per claim id.
	ErrClaimNotPending = errors.New("store: transfer claim already settled")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Balance mutations are
// serialized per account by the ledger above this interface, so
// implementations only guarantee that individual calls are atomic.
type Store interface {
	// --- Account operations ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by its id.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccounts returns all accounts, newest first.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// SetAccountStatus updates the onboarding status of an account.
	SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) error

	// UpdateBalances overwrites both balances after a settled mutation.
	UpdateBalances(ctx context.Context, id string, rial, mg int64) error

	// --- Immutable trade log ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// TradesByAccount returns all trades for an account, newest first.
	TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error)

	// --- Transfer claims ---

	// InsertClaim persists a new transfer claim.
	InsertClaim(ctx context.Context, c *model.TransferClaim) error

	// GetClaim retrieves a transfer claim by its id.
	GetClaim(ctx context.Context, id string) (*model.TransferClaim, error)

	// ClaimsByAccount returns all claims for an account, newest first.
	ClaimsByAccount(ctx context.Context, accountID string) ([]model.TransferClaim, error)

	// PendingClaims returns all claims still awaiting reconciliation.
	PendingClaims(ctx context.Context) ([]model.TransferClaim, error)

	// SettleClaim transitions a claim out of PENDING exactly once and
	// returns the updated claim. If the claim is not pending it returns
	// ErrClaimNotPending and changes nothing.
	SettleClaim(ctx context.Context, id string, status model.ClaimStatus) (*model.TransferClaim, error)
}
