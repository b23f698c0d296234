package activity

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink appends entries to the activity_logs table. The table is
// append-only; nothing here ever updates or deletes a row.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a PostgreSQL backed sink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Append persists one entry.
func (s *PGSink) Append(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_logs (occurred_at, user_id, kind, detail, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.At, entry.UserID, string(entry.Kind), entry.Detail, entry.IP, entry.UserAgent,
	)
	return err
}

// Recent returns the newest entries for one user, newest first.
func (s *PGSink) Recent(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT occurred_at, user_id, kind, detail, ip, user_agent
		 FROM activity_logs
		 WHERE user_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			kind  string
		)
		if err := rows.Scan(&entry.At, &entry.UserID, &kind, &entry.Detail, &entry.IP, &entry.UserAgent); err != nil {
			return nil, err
		}
		entry.Kind = Kind(kind)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ Sink = (*PGSink)(nil)
