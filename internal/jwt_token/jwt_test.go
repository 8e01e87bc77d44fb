package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

func testAccount(t *testing.T) id.Account {
	t.Helper()
	acct, err := id.ParseAccount("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	return acct
}

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-signing-key", "nymreg", "nymreg-api")
	acct := testAccount(t)

	token, err := svc.GenerateAccessToken(acct, false, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, acct.Hex(), claims.Account)
	assert.False(t, claims.Admin)
	assert.Equal(t, "nymreg", claims.Issuer)
}

func TestAdminClaim(t *testing.T) {
	svc := NewJWTService("test-signing-key", "nymreg", "nymreg-api")

	token, err := svc.GenerateAccessToken(testAccount(t), true, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
}

func TestValidateRejections(t *testing.T) {
	svc := NewJWTService("test-signing-key", "nymreg", "nymreg-api")
	acct := testAccount(t)

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.GenerateAccessToken(acct, false, -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewJWTService("different-key", "nymreg", "nymreg-api")
		token, err := other.GenerateAccessToken(acct, false, time.Hour)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestExtractAccountFromToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", "nymreg", "nymreg-api")
	acct := testAccount(t)

	token, err := svc.GenerateAccessToken(acct, false, time.Hour)
	require.NoError(t, err)

	got, err := svc.ExtractAccountFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, acct, got)
}
