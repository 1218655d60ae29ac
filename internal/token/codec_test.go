package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

const testSecret = "test-signing-key"

func mustCodec(t *testing.T, secret string, algorithm string) *Codec {
	t.Helper()

	codec, err := NewCodec(secret, algorithm)
	require.NoError(t, err)
	return codec
}

func sampleClaims(now time.Time) model.TokenClaims {
	return model.TokenClaims{
		Username:  "alice",
		UserID:    7,
		Purpose:   model.PurposeAccess,
		TokenID:   "jti-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestNewCodec(t *testing.T) {
	t.Parallel()

	t.Run("requires a signing key", func(t *testing.T) {
		_, err := NewCodec("  ", "HS256")
		require.Error(t, err)
	})

	t.Run("defaults to HS256", func(t *testing.T) {
		codec := mustCodec(t, testSecret, "")
		require.Equal(t, "HS256", codec.Algorithm())
	})

	t.Run("rejects non-HMAC algorithms", func(t *testing.T) {
		_, err := NewCodec(testSecret, "RS256")
		require.Error(t, err)

		_, err = NewCodec(testSecret, "none")
		require.Error(t, err)
	})
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := mustCodec(t, testSecret, "HS384")

	encoded, err := codec.Encode(sampleClaims(now))
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, sampleClaims(now), decoded)
}

func TestCodecEncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := mustCodec(t, testSecret, "HS256")

	first, err := codec.Encode(sampleClaims(now))
	require.NoError(t, err)
	second, err := codec.Encode(sampleClaims(now))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCodecDoesNotCheckExpiry(t *testing.T) {
	t.Parallel()

	past := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	codec := mustCodec(t, testSecret, "HS256")

	encoded, err := codec.Encode(sampleClaims(past))
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, past.Add(time.Hour), decoded.ExpiresAt)
}

func TestCodecDecodeFailures(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	codec := mustCodec(t, testSecret, "HS256")
	encoded, err := codec.Encode(sampleClaims(now))
	require.NoError(t, err)

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := codec.Decode("not-a-token")
		require.ErrorIs(t, err, ErrMalformed)

		_, err = codec.Decode("")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("other key fails signature", func(t *testing.T) {
		other := mustCodec(t, "another-key", "HS256")
		_, err := other.Decode(encoded)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("other algorithm fails signature", func(t *testing.T) {
		other := mustCodec(t, testSecret, "HS512")
		_, err := other.Decode(encoded)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered payload fails signature", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "mallory", "user_id": 1, "typ": "access", "jti": "x", "exp": now.Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		parts := strings.Split(encoded, ".")
		forgedParts := strings.Split(forged, ".")
		spliced := parts[0] + "." + forgedParts[1] + "." + parts[2]

		_, err = codec.Decode(spliced)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unsigned token fails signature", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "alice", "user_id": 7, "typ": "access", "jti": "x", "exp": now.Add(time.Hour).Unix(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Decode(unsigned)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing token id is malformed", func(t *testing.T) {
		claims := sampleClaims(now)
		claims.TokenID = ""
		withoutID, err := codec.Encode(claims)
		require.NoError(t, err)

		_, err = codec.Decode(withoutID)
		require.ErrorIs(t, err, ErrMalformed)
	})
}
