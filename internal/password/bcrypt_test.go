package password

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("pw123")
	require.NoError(t, err)
	require.NotEqual(t, "pw123", hash)

	require.True(t, hasher.Verify("pw123", hash))
	require.False(t, hasher.Verify("wrong", hash))
	require.False(t, hasher.Verify("pw123", "not-a-bcrypt-hash"))

	again, err := hasher.Hash("pw123")
	require.NoError(t, err)
	require.NotEqual(t, hash, again, "hashes are salted")
}

func TestNewBcryptHasherCostFallback(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultCost, NewBcryptHasher(0).cost)
	require.Equal(t, DefaultCost, NewBcryptHasher(99).cost)
	require.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).cost)
}
