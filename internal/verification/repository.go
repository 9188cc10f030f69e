package verification

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

// Repository persists verification attempts in Postgres via database/sql,
// the same driver-under-stdlib pattern used by the rest of this pipeline.
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

// GetByUserAndNetwork returns the existing attempt for (user_id, network),
// if any.
func (r *Repository) GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Verification, error) {
	const query = `
		SELECT id, user_id, network, document_hash, status, created_at, verified_at
		FROM verifications
		WHERE user_id = $1 AND network = $2
	`
	row := r.db.QueryRowContext(ctx, query, userID, network)
	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query verification: %w", err)
	}
	return v, nil
}

// Insert persists a new PENDING row, assigning its ID.
func (r *Repository) Insert(ctx context.Context, v *Verification) error {
	v.ID = uuid.New()
	const query = `
		INSERT INTO verifications (id, user_id, network, document_hash, status, created_at, verified_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.UserID, v.Network, hex.EncodeToString(v.DocumentHash[:]), v.Status, v.CreatedAt, v.VerifiedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// MarkVerified updates status and verified_at for an existing row.
func (r *Repository) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error {
	const query = `
		UPDATE verifications
		SET status = $2, verified_at = $3, version = version + 1
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, StatusVerified, verifiedAt)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVerification(row rowScanner) (*Verification, error) {
	var v Verification
	var documentHashHex string
	var network string

	if err := row.Scan(&v.ID, &v.UserID, &network, &documentHashHex, &v.Status, &v.CreatedAt, &v.VerifiedAt); err != nil {
		return nil, err
	}
	v.Network = domain.Network(network)

	decoded, err := hex.DecodeString(documentHashHex)
	if err != nil {
		return nil, fmt.Errorf("decode document_hash: %w", err)
	}
	copy(v.DocumentHash[:], decoded)

	return &v, nil
}
