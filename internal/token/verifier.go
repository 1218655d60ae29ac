package token

import (
	"context"
	"fmt"
	"time"

	"go-auth-service/internal/model"
)

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Verifier runs the decode, purpose, expiry and revocation checks in order.
// Every check runs on every call; none is optional.
type Verifier struct {
	codec       *Codec
	revocations RevocationChecker
}

func NewVerifier(codec *Codec, revocations RevocationChecker) *Verifier {
	return &Verifier{codec: codec, revocations: revocations}
}

func (v *Verifier) VerifyAccessToken(ctx context.Context, tokenString string, now time.Time) (model.TokenClaims, error) {
	return v.verify(ctx, tokenString, model.PurposeAccess, now)
}

func (v *Verifier) VerifyRefreshToken(ctx context.Context, tokenString string, now time.Time) (model.TokenClaims, error) {
	return v.verify(ctx, tokenString, model.PurposeRefresh, now)
}

func (v *Verifier) verify(ctx context.Context, tokenString string, expected model.TokenPurpose, now time.Time) (model.TokenClaims, error) {
	claims, err := v.codec.Decode(tokenString)
	if err != nil {
		return model.TokenClaims{}, err
	}

	if claims.Purpose != expected {
		return model.TokenClaims{}, ErrWrongTokenType
	}

	if !claims.ExpiresAt.After(now) {
		return model.TokenClaims{}, ErrExpired
	}

	revoked, err := v.revocations.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return model.TokenClaims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return model.TokenClaims{}, ErrRevoked
	}

	return claims, nil
}
