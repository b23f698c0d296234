package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/shared"
)

// ActivityRecorder receives audit entries. Recording is fire and forget;
// implementations must never fail the calling operation.
type ActivityRecorder interface {
	Record(entry activity.Entry)
}

// Service wraps registration and login business rules.
type Service struct {
	repo     Repository
	recorder ActivityRecorder
	validate *validator.Validate
}

// NewService constructs a new Service.
func NewService(repo Repository, recorder ActivityRecorder) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		validate: validator.New(),
	}
}

// RegisterInput carries the raw registration form fields.
type RegisterInput struct {
	Username        string `validate:"required,min=3"`
	Email           string `validate:"omitempty,email"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
	IP              string `validate:"-"`
	UserAgent       string `validate:"-"`
}

// LoginInput carries the raw login form fields.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// ValidationError marks input rejected before any store or log call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Register creates a new account. All input checks run before the store
// or the activity trail is touched; a rejected form leaves no trace.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return 0, &ValidationError{Field: fieldErrs[0].Field(), Message: registerMessage(fieldErrs[0])}
		}
		return 0, err
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.CreateUser(ctx, in.Username, in.Email, hashed)
	if err != nil {
		return 0, err
	}

	s.recorder.Record(activity.Entry{
		UserID:    id,
		Kind:      activity.KindRegistration,
		Detail:    "new user registered: " + in.Username,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
	return id, nil
}

// failClosedHash is a bcrypt digest of an unguessable throwaway value.
// Login burns a comparison against it when the username is unknown so the
// two failure paths cost the same.
var failClosedHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("smartportal-fail-closed"), bcrypt.DefaultCost)
	return h
}()

// Login verifies credentials and records the outcome. An unknown username
// and a wrong password both come back as ErrInvalidCredentials with a
// login_failure entry under actor 0; nothing reveals which case occurred.
// On success the stored counter is bumped first, atomically, and the
// post-increment value is returned as the session's login sequence.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, int64, error) {
	user, err := s.repo.FindByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(failClosedHash, []byte(in.Password))
			s.recordFailure(in)
			return nil, 0, shared.ErrInvalidCredentials
		}
		return nil, 0, err
	}

	if !CheckPassword(in.Password, user.PasswordHash) {
		s.recordFailure(in)
		return nil, 0, shared.ErrInvalidCredentials
	}

	seq, err := s.repo.RecordLogin(ctx, user.ID, time.Now())
	if err != nil {
		return nil, 0, err
	}
	user.LoginCount = seq

	s.recorder.Record(activity.Entry{
		UserID:    user.ID,
		Kind:      activity.KindLoginSuccess,
		Detail:    "successful login for " + user.Username,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
	return user, seq, nil
}

// Logout records the event and drops the session audit row. Best effort:
// it succeeds even when the session is already gone.
func (s *Service) Logout(ctx context.Context, userID int64, username, sessionID, ip, ua string) {
	if userID != 0 {
		s.recorder.Record(activity.Entry{
			UserID:    userID,
			Kind:      activity.KindLogout,
			Detail:    "user " + username + " logged out",
			IP:        ip,
			UserAgent: ua,
		})
	}
	if sessionID != "" {
		_ = s.repo.DeleteSession(ctx, sessionID)
	}
}

// UpdateProfile replaces the account email. The single UPDATE either
// applies fully or not at all; there is no partial mutation to report.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, email, ip, ua string) error {
	if email != "" {
		if err := s.validate.Var(email, "email"); err != nil {
			return &ValidationError{Field: "Email", Message: "A valid email address is required"}
		}
	}
	if err := s.repo.UpdateEmail(ctx, userID, email); err != nil {
		return err
	}
	s.recorder.Record(activity.Entry{
		UserID:    userID,
		Kind:      activity.KindProfileUpdate,
		Detail:    "profile information updated",
		IP:        ip,
		UserAgent: ua,
	})
	return nil
}

// RegisterSession persists the session metadata for auditing.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

func (s *Service) recordFailure(in LoginInput) {
	s.recorder.Record(activity.Entry{
		UserID:    0,
		Kind:      activity.KindLoginFailure,
		Detail:    "failed login attempt for " + in.Username,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
}

func registerMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Field() {
	case "Username":
		return "Username must be at least 3 characters long"
	case "Password":
		return "Password must be at least 8 characters long"
	case "ConfirmPassword":
		return "Passwords do not match"
	case "Email":
		return "A valid email address is required"
	default:
		return "Invalid input"
	}
}
