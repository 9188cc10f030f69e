package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

// Repository persists wallets in Postgres. The (user_id, network) unique
// constraint and the wallet_address unique constraint are the durable
// authority the allocator and event handler lean on when in-memory state
// can't guarantee uniqueness alone.
type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, databaseURL string, poolSize int) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(poolSize)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	const query = `
		SELECT id, user_id, network, wallet_address, derivation_index, created_at, last_accessed_at
		FROM wallets
		WHERE user_id = $1 AND network = $2
	`
	w, err := scanWallet(r.db.QueryRowContext(ctx, query, userID, network))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	return w, nil
}

// MaxDerivationIndex returns the highest allocated index for network, or
// -1 if none exist yet — the seed DerivationAllocator falls back to when
// its cache is cold.
func (r *Repository) MaxDerivationIndex(ctx context.Context, network domain.Network) (int64, error) {
	const query = `SELECT COALESCE(MAX(derivation_index), -1) FROM wallets WHERE network = $1`
	var max int64
	if err := r.db.QueryRowContext(ctx, query, network).Scan(&max); err != nil {
		return 0, fmt.Errorf("query max derivation index: %w", err)
	}
	return max, nil
}

// Insert persists a new wallet row. Any unique-constraint violation, on
// (user_id, network), wallet_address or (network, derivation_index),
// surfaces as WALLET_ALREADY_EXISTS; Core.CreateWallet then checks whether
// a row for this user and network exists.
func (r *Repository) Insert(ctx context.Context, w *Wallet) error {
	w.ID = uuid.New()
	const query = `
		INSERT INTO wallets (id, user_id, network, wallet_address, derivation_index, created_at, last_accessed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.Network, w.WalletAddress, w.DerivationIndex, w.CreatedAt, w.LastAccessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.CodeWalletAlreadyExists, "wallet already exists for user and network", err)
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// UpdateLastAccessed bumps last_accessed_at for an existing row.
func (r *Repository) UpdateLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE wallets SET last_accessed_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("update last_accessed_at: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if ok := asPQError(err, &pqErr); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}

func asPQError(err error, target **pq.Error) bool {
	if e, ok := err.(*pq.Error); ok {
		*target = e
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var network string
	if err := row.Scan(&w.ID, &w.UserID, &network, &w.WalletAddress, &w.DerivationIndex, &w.CreatedAt, &w.LastAccessedAt); err != nil {
		return nil, err
	}
	w.Network = domain.Network(network)
	return &w, nil
}
