// Package transfer accepts externally-verified deposit claims and queues
// them for manual reconciliation. Claims are never auto-approved; an
// approval credits the ledger exactly once per claim id.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zarrin/settlement-engine/internal/ledger"
	"github.com/zarrin/settlement-engine/internal/model"
	"github.com/zarrin/settlement-engine/internal/store"
)

var (
	// ErrInvalidClaim rejects claims with a non-positive amount or
	// missing payment reference.
	ErrInvalidClaim = errors.New("transfer: claim amount and reference are required")

	// ErrClaimAlreadySettled is returned when reconciling a claim that
	// has already been approved or rejected.
	ErrClaimAlreadySettled = errors.New("transfer: claim already settled")
)

// Intake queues deposit claims and applies reconciliation decisions.
type Intake struct {
	st     store.Store
	ledger *ledger.Ledger
}

// NewIntake creates a transfer intake over the given store and ledger.
func NewIntake(st store.Store, lg *ledger.Ledger) *Intake {
	return &Intake{st: st, ledger: lg}
}

// SubmitClaim queues a deposit assertion in PENDING status. The account
// must exist; the claim waits for a reconciliation actor.
func (i *Intake) SubmitClaim(ctx context.Context, accountID string, amountRial int64, reference string) (*model.TransferClaim, error) {
	if amountRial <= 0 || reference == "" {
		return nil, ErrInvalidClaim
	}
	if _, err := i.st.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	c := &model.TransferClaim{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		AmountRial: amountRial,
		Reference:  reference,
		Status:     model.ClaimPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.st.InsertClaim(ctx, c); err != nil {
		return nil, fmt.Errorf("queue claim: %w", err)
	}

	slog.Info("transfer claim queued",
		"claim", c.ID,
		"account", accountID,
		"amount_rial", amountRial,
		"reference", reference,
	)
	return c, nil
}

// Reconcile applies a reconciliation decision. The PENDING → settled
// transition happens at most once per claim id, so a repeated approval
// can never credit the ledger twice.
func (i *Intake) Reconcile(ctx context.Context, claimID string, approve bool) (*model.TransferClaim, error) {
	status := model.ClaimRejected
	if approve {
		status = model.ClaimApproved
	}

	c, err := i.st.SettleClaim(ctx, claimID, status)
	if errors.Is(err, store.ErrClaimNotPending) {
		return nil, ErrClaimAlreadySettled
	}
	if err != nil {
		return nil, err
	}

	if approve {
		if err := i.ledger.Credit(ctx, c.AccountID, c.AmountRial); err != nil {
			return nil, fmt.Errorf("credit reconciled claim %s: %w", claimID, err)
		}
	}

	slog.Info("transfer claim reconciled", "claim", claimID, "status", status)
	return c, nil
}

// ClaimsByAccount returns all claims for an account, newest first.
func (i *Intake) ClaimsByAccount(ctx context.Context, accountID string) ([]model.TransferClaim, error) {
	return i.st.ClaimsByAccount(ctx, accountID)
}

// PendingClaims returns the reconciliation queue, oldest first.
func (i *Intake) PendingClaims(ctx context.Context) ([]model.TransferClaim, error) {
	return i.st.PendingClaims(ctx)
}
