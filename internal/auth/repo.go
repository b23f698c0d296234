package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartportal/smartportal/internal/shared"
)

// Repository defines persistence operations for the credential store.
type Repository interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	RecordLogin(ctx context.Context, userID int64, at time.Time) (int64, error)
	UpdateEmail(ctx context.Context, userID int64, email string) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateUser inserts a new account. The unique constraint on username is
// the serialization point: concurrent registrations with the same name
// cannot both succeed.
func (r *PGRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, created_at, login_count)
		 VALUES ($1, $2, $3, NOW(), 0)
		 RETURNING id`,
		username, optionalText(email), passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.ErrDuplicateUsername
		}
		return 0, err
	}
	return id, nil
}

// FindByUsername fetches a user by exact, case-sensitive username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var (
		user      User
		email     pgtype.Text
		lastLogin pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at, login_count, last_login
		 FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &user.CreatedAt, &user.LoginCount, &lastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		user.Email = email.String
	}
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time
	}
	return &user, nil
}

// RecordLogin bumps the login counter and stamps last_login in one
// statement. The increment is atomic and monotonic by construction; the
// returned value is the counter the new session must carry.
func (r *PGRepository) RecordLogin(ctx context.Context, userID int64, at time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET login_count = login_count + 1, last_login = $2
		 WHERE id = $1
		 RETURNING login_count`,
		userID, at.UTC(),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

// UpdateEmail replaces the account email.
func (r *PGRepository) UpdateEmail(ctx context.Context, userID int64, email string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $2 WHERE id = $1`,
		userID, optionalText(email),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession persists a login session record for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, user_agent)
		 VALUES ($1, $2, NOW(), $3, $4, $5)`,
		id, userID, expiresAt.UTC(), optionalText(ip), optionalText(ua),
	)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
