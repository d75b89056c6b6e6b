package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zarrin/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as BIGINT minor units (rial, milligrams)
// so there is no representation drift on persistence or replay.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, phone, status, balance_rial, balance_mg, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Name, a.Phone, a.Status, a.BalanceRial, a.BalanceMg, a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, phone, status, balance_rial, balance_mg, created_at
		 FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Phone, &a.Status, &a.BalanceRial, &a.BalanceMg, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, phone, status, balance_rial, balance_mg, created_at
		 FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Status,
			&a.BalanceRial, &a.BalanceMg, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateBalances(ctx context.Context, id string, rial, mg int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET balance_rial = $2, balance_mg = $3 WHERE id = $1`,
		id, rial, mg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, account_id, side, gold_mg, fiat_rial, rate, rate_locked, post_rial, post_mg, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.AccountID, t.Side, t.GoldMg, t.FiatRial, t.Rate, t.RateLocked,
		t.PostRial, t.PostMg, t.Timestamp,
	)
	return err
}

func (s *PostgresStore) TradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, side, gold_mg, fiat_rial, rate, rate_locked, post_rial, post_mg, timestamp
		 FROM trades WHERE account_id = $1 ORDER BY timestamp DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Side, &t.GoldMg, &t.FiatRial,
			&t.Rate, &t.RateLocked, &t.PostRial, &t.PostMg, &t.Timestamp); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) InsertClaim(ctx context.Context, c *model.TransferClaim) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transfer_claims (id, account_id, amount_rial, reference, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.AccountID, c.AmountRial, c.Reference, c.Status, c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (*model.TransferClaim, error) {
	var c model.TransferClaim
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, amount_rial, reference, status, created_at, settled_at
		 FROM transfer_claims WHERE id = $1`, id).
		Scan(&c.ID, &c.AccountID, &c.AmountRial, &c.Reference, &c.Status, &c.CreatedAt, &c.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get claim %s: %w", id, err)
	}
	return &c, nil
}

func (s *PostgresStore) ClaimsByAccount(ctx context.Context, accountID string) ([]model.TransferClaim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, amount_rial, reference, status, created_at, settled_at
		 FROM transfer_claims WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClaims(rows)
}

func (s *PostgresStore) PendingClaims(ctx context.Context) ([]model.TransferClaim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, amount_rial, reference, status, created_at, settled_at
		 FROM transfer_claims WHERE status = 'PENDING' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClaims(rows)
}

// SettleClaim relies on the conditional UPDATE to make the PENDING →
// settled transition happen at most once even under concurrent
// reconciliation calls.
func (s *PostgresStore) SettleClaim(ctx context.Context, id string, status model.ClaimStatus) (*model.TransferClaim, error) {
	var c model.TransferClaim
	err := s.pool.QueryRow(ctx,
		`UPDATE transfer_claims
		 SET status = $2, settled_at = NOW()
		 WHERE id = $1 AND status = 'PENDING'
		 RETURNING id, account_id, amount_rial, reference, status, created_at, settled_at`,
		id, status).
		Scan(&c.ID, &c.AccountID, &c.AmountRial, &c.Reference, &c.Status, &c.CreatedAt, &c.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or already settled; distinguish for the caller.
		if _, getErr := s.GetClaim(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrClaimNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("settle claim %s: %w", id, err)
	}
	return &c, nil
}

func scanClaims(rows pgx.Rows) ([]model.TransferClaim, error) {
	var claims []model.TransferClaim
	for rows.Next() {
		var c model.TransferClaim
		if err := rows.Scan(&c.ID, &c.AccountID, &c.AmountRial, &c.Reference,
			&c.Status, &c.CreatedAt, &c.SettledAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
