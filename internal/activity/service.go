package activity

import (
	"context"
	"fmt"
)

// Reader provides read access to recorded entries.
type Reader interface {
	Recent(ctx context.Context, userID int64, limit int) ([]Entry, error)
}

// Service coordinates reads over the activity trail.
type Service struct {
	reader Reader
}

// NewService builds a Service instance.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Recent returns the newest entries for one user.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("activity: reader not configured")
	}
	return s.reader.Recent(ctx, userID, limit)
}
