package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/internal/shared"
	_ "github.com/smartportal/smartportal/internal/testing/guard"
)

type memoryRepo struct {
	users    map[string]*auth.User
	nextID   int64
	sessions map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:    make(map[string]*auth.User),
		nextID:   1,
		sessions: make(map[string]int64),
	}
}

func (r *memoryRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	if _, ok := r.users[username]; ok {
		return 0, shared.ErrDuplicateUsername
	}
	id := r.nextID
	r.nextID++
	r.users[username] = &auth.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	return id, nil
}

func (r *memoryRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memoryRepo) RecordLogin(ctx context.Context, userID int64, at time.Time) (int64, error) {
	for _, user := range r.users {
		if user.ID == userID {
			user.LoginCount++
			user.LastLogin = at
			return user.LoginCount, nil
		}
	}
	return 0, shared.ErrNotFound
}

func (r *memoryRepo) UpdateEmail(ctx context.Context, userID int64, email string) error {
	for _, user := range r.users {
		if user.ID == userID {
			user.Email = email
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

type capturingRecorder struct {
	entries []activity.Entry
}

func (c *capturingRecorder) Record(entry activity.Entry) {
	c.entries = append(c.entries, entry)
}

func (c *capturingRecorder) last() *activity.Entry {
	if len(c.entries) == 0 {
		return nil
	}
	return &c.entries[len(c.entries)-1]
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newMemoryRepo()
	rec := &capturingRecorder{}
	svc := auth.NewService(repo, rec)
	ctx := context.Background()

	id, err := svc.Register(ctx, auth.RegisterInput{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "secretpass1",
		ConfirmPassword: "secretpass1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero user id")
	}
	if entry := rec.last(); entry == nil || entry.Kind != activity.KindRegistration {
		t.Fatalf("expected registration entry, got %+v", entry)
	}

	user, seq, err := svc.Login(ctx, auth.LoginInput{Username: "alice", Password: "secretpass1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username = %q", user.Username)
	}
	if seq != 1 {
		t.Fatalf("first login sequence = %d, want 1", seq)
	}
	if entry := rec.last(); entry == nil || entry.Kind != activity.KindLoginSuccess {
		t.Fatalf("expected login_success entry, got %+v", entry)
	}

	// A second login bumps the sequence.
	_, seq, err = svc.Login(ctx, auth.LoginInput{Username: "alice", Password: "secretpass1"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if seq != 2 {
		t.Fatalf("second login sequence = %d, want 2", seq)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	repo := newMemoryRepo()
	rec := &capturingRecorder{}
	svc := auth.NewService(repo, rec)
	ctx := context.Background()

	if _, err := svc.Register(ctx, auth.RegisterInput{
		Username:        "alice",
		Password:        "secretpass1",
		ConfirmPassword: "secretpass1",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, wrongPass := svc.Login(ctx, auth.LoginInput{Username: "alice", Password: "wrong"})
	_, _, unknownUser := svc.Login(ctx, auth.LoginInput{Username: "nobody", Password: "wrong"})

	if !errors.Is(wrongPass, shared.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", wrongPass)
	}
	if !errors.Is(unknownUser, shared.ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", unknownUser)
	}
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatalf("failure modes must be indistinguishable")
	}

	// Both failures land in the trail under actor 0.
	var failures int
	for _, entry := range rec.entries {
		if entry.Kind == activity.KindLoginFailure {
			failures++
			if entry.UserID != 0 {
				t.Fatalf("failure entry actor = %d, want 0", entry.UserID)
			}
		}
	}
	if failures != 2 {
		t.Fatalf("failure entries = %d, want 2", failures)
	}
}

func TestRegisterValidationMessages(t *testing.T) {
	repo := newMemoryRepo()
	svc := auth.NewService(repo, &capturingRecorder{})
	ctx := context.Background()

	cases := []struct {
		name    string
		input   auth.RegisterInput
		message string
	}{
		{
			name:    "short username",
			input:   auth.RegisterInput{Username: "al", Password: "secretpass1", ConfirmPassword: "secretpass1"},
			message: "Username must be at least 3 characters long",
		},
		{
			name:    "short password",
			input:   auth.RegisterInput{Username: "alice", Password: "short", ConfirmPassword: "short"},
			message: "Password must be at least 8 characters long",
		},
		{
			name:    "password mismatch",
			input:   auth.RegisterInput{Username: "alice", Password: "secretpass1", ConfirmPassword: "different1"},
			message: "Passwords do not match",
		},
		{
			name:    "bad email",
			input:   auth.RegisterInput{Username: "alice", Email: "not-an-email", Password: "secretpass1", ConfirmPassword: "secretpass1"},
			message: "A valid email address is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.input)
			var vErr *auth.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Message != tc.message {
				t.Fatalf("message = %q, want %q", vErr.Message, tc.message)
			}
		})
	}

	// Rejected input must leave no account behind.
	if _, err := repo.FindByUsername(ctx, "alice"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("rejected registration must not create a user")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newMemoryRepo()
	svc := auth.NewService(repo, &capturingRecorder{})
	ctx := context.Background()

	input := auth.RegisterInput{Username: "alice", Password: "secretpass1", ConfirmPassword: "secretpass1"}
	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, input); !errors.Is(err, shared.ErrDuplicateUsername) {
		t.Fatalf("duplicate register: got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	repo := newMemoryRepo()
	rec := &capturingRecorder{}
	svc := auth.NewService(repo, rec)
	ctx := context.Background()

	id, err := svc.Register(ctx, auth.RegisterInput{Username: "alice", Password: "secretpass1", ConfirmPassword: "secretpass1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.UpdateProfile(ctx, id, "bad@", "", ""); err == nil {
		t.Fatalf("invalid email must be rejected")
	}
	if err := svc.UpdateProfile(ctx, id, "alice@example.com", "", ""); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	user, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email = %q", user.Email)
	}
	if entry := rec.last(); entry == nil || entry.Kind != activity.KindProfileUpdate {
		t.Fatalf("expected profile_update entry, got %+v", entry)
	}
}
