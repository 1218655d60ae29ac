package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-auth-service/internal/event"
	"go-auth-service/internal/logger"
	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

const tokenTypeBearer = "bearer"

type CredentialStore interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, username string, email string, passwordHash string) (model.User, error)
}

type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, hash string) bool
}

type Option func(*AuthService)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// AuthService ties signup, login, refresh rotation and logout together. It
// holds no mutable state of its own beyond the injected stores.
type AuthService struct {
	users       CredentialStore
	revocations RevocationStore
	issuer      *token.Issuer
	verifier    *token.Verifier
	codec       *token.Codec
	hasher      PasswordHasher
	publisher   event.Publisher
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	users CredentialStore,
	revocations RevocationStore,
	issuer *token.Issuer,
	verifier *token.Verifier,
	codec *token.Codec,
	hasher PasswordHasher,
	publisher event.Publisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:       users,
		revocations: revocations,
		issuer:      issuer,
		verifier:    verifier,
		codec:       codec,
		hasher:      hasher,
		publisher:   publisher,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Signup(ctx context.Context, username string, email string, password string) (model.UserView, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return model.UserView{}, model.ErrInvalidInput
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return model.UserView{}, model.ErrUsernameTaken
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.UserView{}, fmt.Errorf("check username: %w", err)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.UserView{}, model.ErrEmailTaken
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.UserView{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.UserView{}, err
	}

	// The existence checks above race with concurrent signups; the store's
	// own constraint decides the loser.
	user, err := s.users.Create(ctx, username, email, hash)
	if err != nil {
		var dup *model.DuplicateKeyError
		if errors.As(err, &dup) {
			if dup.Field == "email" {
				return model.UserView{}, model.ErrEmailTaken
			}
			return model.UserView{}, model.ErrUsernameTaken
		}
		return model.UserView{}, err
	}

	view := user.View()
	s.publisher.PublishUserCreated(view)

	logger.FromContext(ctx).Info("user signed up", "user_id", user.ID, "username", user.Username)
	return view, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, model.ErrUserNotFound) {
		// Burn a comparable amount of time so response latency does not
		// reveal whether the username exists.
		s.hasher.Verify(password, s.dummyPasswordHash())
		return model.TokenPair{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) || !user.IsActive {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	return s.issuePair(user.ID, user.Username)
}

// RefreshAccessToken consumes a refresh token and returns a new pair. Each
// refresh token is accepted at most once.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.verifier.VerifyRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		if token.IsRejection(err) {
			logger.FromContext(ctx).Debug("refresh token rejected", "reason", err)
			return model.TokenPair{}, model.ErrInvalidRefreshToken
		}
		return model.TokenPair{}, err
	}

	inserted, err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !inserted {
		// A concurrent refresh with the same token won the revocation.
		logger.FromContext(ctx).Warn("refresh token replayed", "user_id", claims.UserID, "jti", claims.TokenID)
		return model.TokenPair{}, model.ErrInvalidRefreshToken
	}

	return s.issuePair(claims.UserID, claims.Username)
}

// Logout revokes the presented token. Only a structural decode is required so
// that a nearly expired token can still be revoked.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return model.ErrUnauthorized
	}

	if _, err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("user logged out", "user_id", claims.UserID, "jti", claims.TokenID)
	return nil
}

// Authenticate runs the full access-token verification, revocation included.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.TokenClaims, error) {
	claims, err := s.verifier.VerifyAccessToken(ctx, accessToken, s.now())
	if err != nil {
		if token.IsRejection(err) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}
	return &claims, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (model.UserView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.UserView{}, err
	}
	return user.View(), nil
}

func (s *AuthService) AccessTTL() time.Duration {
	return s.issuer.AccessTTL()
}

func (s *AuthService) issuePair(userID int64, username string) (model.TokenPair, error) {
	now := s.now()

	access, err := s.issuer.IssueAccessToken(userID, username, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, err := s.issuer.IssueRefreshToken(userID, username, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			slog.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
