package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenwell/aegis/internal/database"
	"github.com/havenwell/aegis/internal/models"
)

type VerificationCodeRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationCodeRepository(db *database.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: db.Pool}
}

func (r *VerificationCodeRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO verification_codes (id, email, code, purpose, verified, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`

	_, err := r.pool.Exec(ctx, query, code.ID, code.Email, code.Code, code.Purpose, code.CreatedAt)
	return database.MapPostgresError(err)
}

// GetLatestUnverified returns the most recent unverified code for the email
// and purpose; earlier codes are superseded.
func (r *VerificationCodeRepository) GetLatestUnverified(ctx context.Context, email, purpose string) (*models.VerificationCode, error) {
	query := `
		SELECT id, email, code, purpose, verified, created_at
		FROM verification_codes
		WHERE email = $1 AND purpose = $2 AND verified = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var code models.VerificationCode
	err := r.pool.QueryRow(ctx, query, email, purpose).Scan(
		&code.ID, &code.Email, &code.Code, &code.Purpose, &code.Verified, &code.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &code, nil
}

func (r *VerificationCodeRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE verification_codes SET verified = TRUE WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan purges codes created before the cutoff, returning the number removed
func (r *VerificationCodeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM verification_codes WHERE created_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
