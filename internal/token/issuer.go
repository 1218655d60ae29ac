package token

import (
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Issuer mints access and refresh tokens. It never touches a store.
type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	newID      func() string
}

func NewIssuer(codec *Codec, accessTTL time.Duration, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Issuer{
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		newID:      uuid.NewString,
	}
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *Issuer) IssueAccessToken(userID int64, username string, now time.Time) (string, error) {
	return i.issue(userID, username, model.PurposeAccess, i.accessTTL, now)
}

func (i *Issuer) IssueRefreshToken(userID int64, username string, now time.Time) (string, error) {
	return i.issue(userID, username, model.PurposeRefresh, i.refreshTTL, now)
}

func (i *Issuer) issue(userID int64, username string, purpose model.TokenPurpose, ttl time.Duration, now time.Time) (string, error) {
	// JWT dates carry whole seconds; truncate so exp never lands after now+ttl.
	issuedAt := now.UTC().Truncate(time.Second)

	return i.codec.Encode(model.TokenClaims{
		Username:  username,
		UserID:    userID,
		Purpose:   purpose,
		TokenID:   i.newID(),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	})
}
