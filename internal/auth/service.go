package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/neofi/eventledger/internal/config"
	"github.com/neofi/eventledger/internal/store"
)

var (
	// ErrInvalidCredentials covers a bad username/password pair and a
	// rejected or expired token alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountExists indicates the email or username is already taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidInput indicates a malformed registration request.
	ErrInvalidInput = errors.New("invalid input")
)

const minPasswordLength = 8

// Claims is the JWT payload for access tokens.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Token is an issued access token with its expiry.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Service is the identity provider: it registers accounts, verifies
// passwords and issues/verifies HS256 access tokens.
type Service struct {
	store    *store.Store
	secret   []byte
	tokenTTL time.Duration
}

func NewService(cfg *config.Config, st *store.Store) *Service {
	return &Service{
		store:    st,
		secret:   []byte(cfg.JWT.Secret),
		tokenTTL: cfg.JWT.TokenTTL,
	}
}

// Register creates an account with a bcrypt-hashed password. New accounts
// receive the lowest global default role; per-event access always comes
// from ownership or explicit grants.
func (s *Service) Register(ctx context.Context, email, username, password string) (*store.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.Users.Create(ctx, store.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         store.RoleViewer,
		IsActive:     true,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Login verifies the password and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.store.Users.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		// Burn a hash comparison anyway so the response time does not
		// reveal whether the username exists.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Refresh verifies a still-valid token and issues a fresh one for the
// same account.
func (s *Service) Refresh(ctx context.Context, tokenString string) (*Token, error) {
	user, err := s.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Verify parses and validates a token and resolves its account.
func (s *Service) Verify(ctx context.Context, tokenString string) (*store.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users.GetByUsername(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) issue(user *store.User) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}
