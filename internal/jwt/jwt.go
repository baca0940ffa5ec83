// Package jwt implements self-contained HMAC JWT verification for the API's
// bearer tokens. Only the HS256/HS384/HS512 family is supported; asymmetric
// algorithms and "none" are rejected outright.
package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
)

const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"

	partCount      = 3
	maxTokenLength = 8192
)

// Claims is the decoded JWT payload.
type Claims = map[string]any

var (
	// ErrInvalidToken indicates the token string is malformed or cannot be decoded.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnsupportedAlgorithm indicates the signing algorithm is not allowed.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	// ErrSignatureInvalid indicates the signature does not match.
	ErrSignatureInvalid = errors.New("signature verification failed")
	// ErrTokenExpired indicates the exp claim is in the past.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenNotYetValid indicates the nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("token is not yet valid")
)

// Verifier validates compact JWTs against a shared secret.
type Verifier struct {
	secret     []byte
	algorithms []string
}

// NewVerifier creates a verifier. When no algorithms are given, HS256 is the
// only one accepted.
func NewVerifier(secret []byte, algorithms ...string) *Verifier {
	if len(algorithms) == 0 {
		algorithms = []string{AlgHS256}
	}

	return &Verifier{secret: secret, algorithms: algorithms}
}

// Verify parses the token, checks the signature with constant-time comparison
// and validates the time claims against now.
func (v *Verifier) Verify(tokenString string, now time.Time) (Claims, error) {
	if tokenString == "" || len(tokenString) > maxTokenLength {
		return nil, ErrInvalidToken
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != partCount {
		return nil, fmt.Errorf("token must have %d parts: %w", partCount, ErrInvalidToken)
	}

	alg, err := v.headerAlgorithm(parts[0])
	if err != nil {
		return nil, err
	}

	if err := v.verifySignature(parts, alg); err != nil {
		return nil, err
	}

	claims, err := decodeClaims(parts[1])
	if err != nil {
		return nil, err
	}

	if err := validateTimeClaims(claims, now); err != nil {
		return nil, err
	}

	return claims, nil
}

func (v *Verifier) headerAlgorithm(headerPart string) (string, error) {
	headerBytes, err := base64.RawURLEncoding.DecodeString(headerPart)
	if err != nil {
		return "", fmt.Errorf("decode header: %w", ErrInvalidToken)
	}

	var header struct {
		Alg string `json:"alg"`
	}

	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return "", fmt.Errorf("unmarshal header: %w", ErrInvalidToken)
	}

	for _, allowed := range v.algorithms {
		if header.Alg == allowed {
			return header.Alg, nil
		}
	}

	return "", fmt.Errorf("algorithm %q: %w", header.Alg, ErrUnsupportedAlgorithm)
}

func (v *Verifier) verifySignature(parts []string, alg string) error {
	hashFunc, err := hashForAlgorithm(alg)
	if err != nil {
		return err
	}

	mac := hmac.New(hashFunc, v.secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))

	actual, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("decode signature: %w", ErrInvalidToken)
	}

	if !hmac.Equal(mac.Sum(nil), actual) {
		return ErrSignatureInvalid
	}

	return nil
}

func decodeClaims(payloadPart string) (Claims, error) {
	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", ErrInvalidToken)
	}

	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", ErrInvalidToken)
	}

	return claims, nil
}

func validateTimeClaims(claims Claims, now time.Time) error {
	if exp, ok := numericTime(claims, "exp"); ok && now.After(exp) {
		return fmt.Errorf("token expired at %s: %w", exp.Format(time.RFC3339), ErrTokenExpired)
	}

	if nbf, ok := numericTime(claims, "nbf"); ok && now.Before(nbf) {
		return fmt.Errorf("token not valid until %s: %w", nbf.Format(time.RFC3339), ErrTokenNotYetValid)
	}

	return nil
}

func numericTime(claims Claims, key string) (time.Time, bool) {
	raw, ok := claims[key].(float64)
	if !ok {
		return time.Time{}, false
	}

	return time.Unix(int64(raw), 0).UTC(), true
}

// Sign produces a compact JWT from the given claims. Used by tests and local
// tooling; production tokens are minted by the identity service.
func Sign(claims Claims, algorithm string, secret []byte) (string, error) {
	hashFunc, err := hashForAlgorithm(algorithm)
	if err != nil {
		return "", err
	}

	headerJSON, err := json.Marshal(map[string]string{"alg": algorithm, "typ": "JWT"})
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	mac := hmac.New(hashFunc, secret)
	mac.Write([]byte(signingInput))

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func hashForAlgorithm(alg string) (func() hash.Hash, error) {
	switch alg {
	case AlgHS256:
		return sha256.New, nil
	case AlgHS384:
		return sha512.New384, nil
	case AlgHS512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("algorithm %q: %w", alg, ErrUnsupportedAlgorithm)
	}
}
