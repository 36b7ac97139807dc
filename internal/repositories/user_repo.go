package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenwell/aegis/internal/database"
	"github.com/havenwell/aegis/internal/models"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, gender,
	email_verified, role, last_login, last_logout,
	failed_attempts, is_locked, lockout_until, last_failed_attempt,
	alert_sent, last_alert_sent, alert_cooldown_until,
	created_at, updated_at`

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.FirstName, &user.LastName,
		&user.Phone, &user.Gender, &user.EmailVerified, &user.Role,
		&user.LastLogin, &user.LastLogout,
		&user.Security.FailedAttempts, &user.Security.Locked, &user.Security.LockoutUntil,
		&user.Security.LastFailedAttempt, &user.Security.AlertSent,
		&user.Security.LastAlertSent, &user.Security.AlertCooldownUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := fmt.Sprintf(`
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, gender,
			email_verified, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s
	`, userColumns)

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, passwordHash, user.FirstName, user.LastName,
		user.Phone, user.Gender, user.EmailVerified, user.Role,
		user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateSecurityState applies fn to the account's guard state inside a
// transaction holding a row lock, serializing concurrent failed attempts for
// the same account so counters never undercount.
func (r *UserRepository) UpdateSecurityState(ctx context.Context, userID string, fn func(*models.SecurityState) error) (*models.SecurityState, error) {
	var state models.SecurityState

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT failed_attempts, is_locked, lockout_until, last_failed_attempt,
				alert_sent, last_alert_sent, alert_cooldown_until
			FROM users WHERE id = $1
			FOR UPDATE
		`
		err := tx.QueryRow(ctx, query, userID).Scan(
			&state.FailedAttempts, &state.Locked, &state.LockoutUntil,
			&state.LastFailedAttempt, &state.AlertSent,
			&state.LastAlertSent, &state.AlertCooldownUntil,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if err := fn(&state); err != nil {
			return err
		}

		update := `
			UPDATE users SET failed_attempts = $1, is_locked = $2, lockout_until = $3,
				last_failed_attempt = $4, alert_sent = $5, last_alert_sent = $6,
				alert_cooldown_until = $7, updated_at = NOW()
			WHERE id = $8
		`
		_, err = tx.Exec(ctx, update,
			state.FailedAttempts, state.Locked, state.LockoutUntil,
			state.LastFailedAttempt, state.AlertSent, state.LastAlertSent,
			state.AlertCooldownUntil, userID,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}

	return &state, nil
}

func (r *UserRepository) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_login = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, at, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetLastLogout(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_logout = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, at, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
