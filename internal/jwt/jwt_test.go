package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signedToken(t *testing.T, claims Claims, alg string, key []byte) string {
	t.Helper()

	token, err := Sign(claims, alg, key)
	require.NoError(t, err)

	return token
}

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	token := signedToken(t, Claims{
		"sub": "user-1",
		"exp": float64(now.Add(time.Hour).Unix()),
	}, AlgHS256, secret)

	claims, err := NewVerifier(secret).Verify(token, now)

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
}

func TestVerifyAlgorithms(t *testing.T) {
	now := time.Now().UTC()

	for _, alg := range []string{AlgHS256, AlgHS384, AlgHS512} {
		t.Run(alg, func(t *testing.T) {
			token := signedToken(t, Claims{"sub": "user-1"}, alg, secret)

			_, err := NewVerifier(secret, AlgHS256, AlgHS384, AlgHS512).Verify(token, now)

			require.NoError(t, err)
		})
	}
}

func TestVerifyRejectsDisallowedAlgorithm(t *testing.T) {
	token := signedToken(t, Claims{"sub": "user-1"}, AlgHS512, secret)

	// default verifier only accepts HS256
	_, err := NewVerifier(secret).Verify(token, time.Now().UTC())

	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token := signedToken(t, Claims{"sub": "user-1"}, AlgHS256, secret)

	_, err := NewVerifier([]byte("other-secret")).Verify(token, time.Now().UTC())

	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	token := signedToken(t, Claims{"sub": "user-1"}, AlgHS256, secret)
	parts := strings.Split(token, ".")
	tampered := parts[0] + ".eyJzdWIiOiJ1c2VyLTIifQ." + parts[2]

	_, err := NewVerifier(secret).Verify(tampered, time.Now().UTC())

	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyTimeClaims(t *testing.T) {
	now := time.Now().UTC()

	t.Run("expired", func(t *testing.T) {
		token := signedToken(t, Claims{"exp": float64(now.Add(-time.Minute).Unix())}, AlgHS256, secret)

		_, err := NewVerifier(secret).Verify(token, now)

		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		token := signedToken(t, Claims{"nbf": float64(now.Add(time.Minute).Unix())}, AlgHS256, secret)

		_, err := NewVerifier(secret).Verify(token, now)

		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("claims without timestamps pass", func(t *testing.T) {
		token := signedToken(t, Claims{"sub": "user-1"}, AlgHS256, secret)

		_, err := NewVerifier(secret).Verify(token, now)

		require.NoError(t, err)
	})
}

func TestVerifyMalformed(t *testing.T) {
	v := NewVerifier(secret)
	now := time.Now().UTC()

	for _, token := range []string{"", "only-one-part", "a.b", "a.b.c.d", "!!!.###.$$$"} {
		_, err := v.Verify(token, now)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}
