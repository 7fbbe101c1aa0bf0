package credential

import (
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestVault_RoundTrip(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))

	_, err := v.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, v.SaveToken("abc"))
	token, err := v.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, v.DeleteToken())
	_, err = v.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	assert.NoError(t, v.DeleteToken())
}

func TestParseIdentity(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signed(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp)})

	id, err := ParseIdentity(token)

	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, token, id.Token)
	assert.True(t, id.ExpiresAt.Equal(exp))
	assert.False(t, id.Expired(time.Now()))
}

func TestParseIdentity_Invalid(t *testing.T) {
	_, err := ParseIdentity("")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = ParseIdentity("not-a-jwt")
	assert.Error(t, err)

	_, err = ParseIdentity(signed(t, jwt.RegisteredClaims{}))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestResolve(t *testing.T) {
	token := signed(t, jwt.RegisteredClaims{Subject: "u1"})

	id, err := Resolve(token, "")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	id, err = Resolve(token, "override")
	require.NoError(t, err)
	assert.Equal(t, "override", id.UserID)

	id, err = Resolve("opaque-token", "u9")
	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
	assert.Equal(t, "opaque-token", id.Token)

	_, err = Resolve("", "u9")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestResolve_Expired(t *testing.T) {
	token := signed(t, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	_, err := Resolve(token, "")

	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
