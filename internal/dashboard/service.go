package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/smartportal/smartportal/internal/shared"
)

// Stats is the per-account summary shown on the dashboard.
type Stats struct {
	LoginCount     int64     `json:"login_count"`
	AccountAgeDays int       `json:"account_age"`
	SecurityScore  int       `json:"security_score"`
	LastLogin      time.Time `json:"last_login"`
}

// Repository provides the account fields the dashboard needs.
type Repository interface {
	AccountSummary(ctx context.Context, userID int64) (created time.Time, loginCount int64, lastLogin time.Time, hasEmail bool, err error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AccountSummary fetches the stats source row.
func (r *PGRepository) AccountSummary(ctx context.Context, userID int64) (time.Time, int64, time.Time, bool, error) {
	var (
		created    time.Time
		loginCount int64
		lastLogin  pgtype.Timestamptz
		email      pgtype.Text
	)
	err := r.pool.QueryRow(ctx,
		`SELECT created_at, login_count, last_login, email FROM users WHERE id = $1`,
		userID,
	).Scan(&created, &loginCount, &lastLogin, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, 0, time.Time{}, false, shared.ErrNotFound
		}
		return time.Time{}, 0, time.Time{}, false, err
	}
	var last time.Time
	if lastLogin.Valid {
		last = lastLogin.Time
	}
	return created, loginCount, last, email.Valid && email.String != "", nil
}

// Service computes dashboard statistics.
type Service struct {
	repo  Repository
	group singleflight.Group
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Stats returns the account summary. Concurrent requests for the same
// user collapse into a single store read.
func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	if s.repo == nil {
		return Stats{}, fmt.Errorf("dashboard: repository not configured")
	}
	result, err, _ := s.singleflightStats(ctx, strconv.FormatInt(userID, 10), userID)
	if err != nil {
		return Stats{}, err
	}
	return result, nil
}

func (s *Service) singleflightStats(ctx context.Context, key string, userID int64) (Stats, error, bool) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		created, loginCount, lastLogin, hasEmail, err := s.repo.AccountSummary(ctx, userID)
		if err != nil {
			return Stats{}, err
		}
		age := 0
		if !created.IsZero() {
			age = int(s.now().Sub(created).Hours() / 24)
		}
		return Stats{
			LoginCount:     loginCount,
			AccountAgeDays: age,
			SecurityScore:  securityScore(hasEmail),
			LastLogin:      lastLogin,
		}, nil
	})
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err(), false
	case res := <-resultChan:
		stats, _ := res.Val.(Stats)
		return stats, res.Err, res.Shared
	}
}

// securityScore grades enabled account features. The base covers password
// hashing and server-side sessions; a recovery email adds the rest.
func securityScore(hasEmail bool) int {
	score := 70
	if hasEmail {
		score += 15
	}
	return score
}
