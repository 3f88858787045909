package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neofi/eventledger/internal/config"
	"github.com/neofi/eventledger/internal/store"
)

func newTestAuth(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.JWT.TokenTTL = 30 * time.Minute
	st := store.NewMemory()
	return NewService(cfg, st), st
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != store.RoleViewer {
		t.Errorf("new accounts must default to viewer, got %s", user.Role)
	}
	if user.PasswordHash == "correct horse battery" {
		t.Error("password stored in the clear")
	}

	token, err := svc.Login(ctx, "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "bearer" {
		t.Errorf("unexpected token: %+v", token)
	}
	if !token.ExpiresAt.After(time.Now()) {
		t.Errorf("token already expired: %v", token.ExpiresAt)
	}

	resolved, err := svc.Verify(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("token resolved to user %d, expected %d", resolved.ID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		email, username, password string
	}{
		{"not-an-email", "bob", "long enough pass"},
		{"bob@example.com", "", "long enough pass"},
		{"bob@example.com", "bob", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.email, tc.username, tc.password); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("register(%q,%q): expected ErrInvalidInput, got %v", tc.email, tc.username, err)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "long enough pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice@example.com", "alice2", "long enough pass"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate email: expected ErrAccountExists, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice2@example.com", "alice", "long enough pass"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate username: expected ErrAccountExists, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "long enough pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong password!!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "long enough pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "long enough pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Login(ctx, "alice", "long enough pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tampered := token.AccessToken[:len(token.AccessToken)-2] + "xx"
	if _, err := svc.Verify(ctx, tampered); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("tampered token: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Verify(ctx, "not.a.token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("garbage token: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshIssuesFreshToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "alice", "long enough pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Login(ctx, "alice", "long enough pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	resolved, err := svc.Verify(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("verify refreshed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("refreshed token resolved to user %d, expected %d", resolved.ID, user.ID)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := &config.Config{}
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.JWT.TokenTTL = -time.Minute
	svc := NewService(cfg, store.NewMemory())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "long enough pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Login(ctx, "alice", "long enough pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Verify(ctx, token.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expired token: expected ErrInvalidCredentials, got %v", err)
	}
}
