package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidate(t *testing.T) {
	v := NewValidator(secret)

	token := sign(t, Claims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(secret))

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator(secret)

	_, err := v.Validate("")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = v.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey := sign(t, Claims{UserID: "u1"}, jwt.SigningMethodHS256, []byte("other-secret"))
	_, err = v.Validate(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := sign(t, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte(secret))
	_, err = v.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject := sign(t, Claims{Username: "alice"}, jwt.SigningMethodHS256, []byte(secret))
	_, err = v.Validate(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
