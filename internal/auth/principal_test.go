package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/ids"
)

const testSigningKey = "test-signing-key-at-least-this-long"

func signToken(t *testing.T, claims jwt.RegisteredClaims, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestAuthenticate_AcceptsValidToken(t *testing.T) {
	userID := ids.New()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    "taskrecur-issuer",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := signToken(t, claims, testSigningKey)

	v := NewValidator(testSigningKey)
	p, err := v.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, "taskrecur-issuer", p.Issuer)
}

func TestAuthenticate_RejectsWrongSigningKey(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: ids.New().String()}
	token := signToken(t, claims, "a-completely-different-key")

	v := NewValidator(testSigningKey)
	_, err := v.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   ids.New().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token := signToken(t, claims, testSigningKey)

	v := NewValidator(testSigningKey)
	_, err := v.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_RejectsMissingSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Issuer: "taskrecur-issuer"}
	token := signToken(t, claims, testSigningKey)

	v := NewValidator(testSigningKey)
	_, err := v.Authenticate(token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestAuthenticate_RejectsNonUUIDSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "not-a-uuid"}
	token := signToken(t, claims, testSigningKey)

	v := NewValidator(testSigningKey)
	_, err := v.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: ids.New().String()}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewValidator(testSigningKey)
	_, err = v.Authenticate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWithPrincipalAndFromContext_RoundTrip(t *testing.T) {
	p := Principal{UserID: ids.New(), Subject: "sub"}
	ctx := WithPrincipal(context.Background(), p)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, p, got)
}
