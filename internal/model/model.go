// Package model defines the core domain types shared across the settlement
// engine. All monetary quantities are int64 fixed-point minor units — rial
// for fiat, milligrams for gold — never float64 for money.
package model

import "time"

// AccountStatus is the onboarding state of an account.
type AccountStatus string

const (
	StatusPending  AccountStatus = "PENDING"
	StatusApproved AccountStatus = "APPROVED"
	StatusRejected AccountStatus = "REJECTED"
)

// Side is the direction of a trade from the account holder's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Account holds authoritative balances for one user. Accounts are created
// at onboarding and never deleted; rejection is a status transition.
// Both balances are invariant >= 0 and mutated only by the ledger.
type Account struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Phone       string        `json:"phone" db:"phone"`
	Status      AccountStatus `json:"status" db:"status"`
	BalanceRial int64         `json:"balance_rial" db:"balance_rial"`
	BalanceMg   int64         `json:"balance_mg" db:"balance_mg"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// Quote is one bid/ask tick from the price feed, in rial per mithqal.
// Immutable once issued; superseded by the next tick. Bid < Ask always.
// Timestamp carries Go's monotonic clock reading, so quote ordering
// survives wall-clock adjustments.
type Quote struct {
	Bid       int64     `json:"bid"`
	Ask       int64     `json:"ask"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// QuoteLock is a time-bounded guarantee that one account's next trade
// executes at the locked rates. At most one active lock per account;
// consumed exactly once or expires unused.
type QuoteLock struct {
	AccountID string    `json:"account_id"`
	LockedBid int64     `json:"locked_bid"`
	LockedAsk int64     `json:"locked_ask"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lock window has passed relative to now.
func (l QuoteLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Trade is an immutable record of one settled trade. Once created these
// are never modified or deleted; together they form the audit log.
type Trade struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	Side       Side      `json:"side" db:"side"`
	GoldMg     int64     `json:"gold_mg" db:"gold_mg"`         // milligrams, always > 0
	FiatRial   int64     `json:"fiat_rial" db:"fiat_rial"`     // rial, always > 0
	Rate       int64     `json:"rate" db:"rate"`               // rial per mithqal
	RateLocked bool      `json:"rate_locked" db:"rate_locked"` // executed against a quote lock
	PostRial   int64     `json:"post_rial" db:"post_rial"`     // fiat balance after settlement
	PostMg     int64     `json:"post_mg" db:"post_mg"`         // gold balance after settlement
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// ClaimStatus is the reconciliation state of a transfer claim.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "PENDING"
	ClaimApproved ClaimStatus = "APPROVED"
	ClaimRejected ClaimStatus = "REJECTED"
)

// TransferClaim is an externally-verified deposit assertion awaiting
// manual reconciliation. Approval credits the ledger exactly once.
type TransferClaim struct {
	ID         string      `json:"id" db:"id"`
	AccountID  string      `json:"account_id" db:"account_id"`
	AmountRial int64       `json:"amount_rial" db:"amount_rial"`
	Reference  string      `json:"reference" db:"reference"`
	Status     ClaimStatus `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	SettledAt  *time.Time  `json:"settled_at,omitempty" db:"settled_at"`
}
