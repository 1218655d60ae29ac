package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"go-auth-service/internal/model"
)

const DefaultAlgorithm = "HS256"

type signedClaims struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec converts claim sets to and from signed JWT strings. It performs no
// business validation: expiry and purpose are checked by the Verifier.
type Codec struct {
	key    []byte
	method jwt.SigningMethod
	parser *jwt.Parser
}

func NewCodec(secret string, algorithm string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("signing key is required")
	}

	algorithm = strings.ToUpper(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	return &Codec{
		key:    []byte(secret),
		method: method,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

func (c *Codec) Encode(claims model.TokenClaims) (string, error) {
	payload := signedClaims{
		UserID: claims.UserID,
		Type:   string(claims.Purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Username,
			ID:        claims.TokenID,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	if !claims.IssuedAt.IsZero() {
		payload.IssuedAt = jwt.NewNumericDate(claims.IssuedAt)
	}

	signed, err := jwt.NewWithClaims(c.method, payload).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) Decode(tokenString string) (model.TokenClaims, error) {
	var payload signedClaims
	_, err := c.parser.ParseWithClaims(tokenString, &payload, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return model.TokenClaims{}, ErrInvalidSignature
		}
		return model.TokenClaims{}, ErrMalformed
	}

	// A correctly signed token still has to carry the full claim set.
	if payload.ID == "" || payload.Subject == "" || payload.UserID <= 0 || payload.ExpiresAt == nil {
		return model.TokenClaims{}, ErrMalformed
	}

	claims := model.TokenClaims{
		Username:  payload.Subject,
		UserID:    payload.UserID,
		Purpose:   model.TokenPurpose(payload.Type),
		TokenID:   payload.ID,
		ExpiresAt: payload.ExpiresAt.Time.UTC(),
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time.UTC()
	}

	return claims, nil
}
