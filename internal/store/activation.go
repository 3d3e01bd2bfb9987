package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Activation statuses.
const (
	ActivationPending   = "pending"
	ActivationConfirmed = "confirmed"
	ActivationFailed    = "failed"
)

// ActivationRecord is one attempt to turn a fully-signed agreement into an
// on-chain lease. The agreement id is unique, so the gateway can refuse a
// repeat activation before the chain's own existence check does.
type ActivationRecord struct {
	ID          uuid.UUID `json:"id"`
	AgreementID string    `json:"agreement_id"`
	LeaseKey    string    `json:"lease_key"`
	TxHash      string    `json:"tx_hash"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ActivationRepository struct {
	db *sql.DB
}

func NewActivationRepository(dsn string) (*ActivationRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &ActivationRepository{db: db}, nil
}

func (r *ActivationRepository) Close() error {
	return r.db.Close()
}

func (r *ActivationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ActivationRepository) Create(ctx context.Context, rec *ActivationRecord) error {
	query := `INSERT INTO activations (id, agreement_id, lease_key, tx_hash, status, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7)`
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.AgreementID, rec.LeaseKey, rec.TxHash, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *ActivationRepository) GetByAgreementID(ctx context.Context, agreementID string) (*ActivationRecord, error) {
	query := `SELECT id, agreement_id, lease_key, tx_hash, status, created_at, updated_at
              FROM activations WHERE agreement_id = $1`
	rec := &ActivationRecord{}
	err := r.db.QueryRowContext(ctx, query, agreementID).Scan(&rec.ID, &rec.AgreementID, &rec.LeaseKey, &rec.TxHash, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *ActivationRepository) SetStatus(ctx context.Context, id uuid.UUID, status, txHash string) error {
	query := `UPDATE activations SET status = $2, tx_hash = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status, txHash, time.Now())
	return err
}

func (r *ActivationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM activations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
