package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBadSignature is returned when a token does not verify under any
// accepted key for the requested purpose.
var ErrBadSignature = errors.New("bad signature")

// Purpose scopes used across the pipeline. A token signed under one purpose
// never verifies under another, so payloads cannot be replayed across task
// boundaries.
const (
	PurposeNotification   = "notification"
	PurposeDeliveryStatus = "delivery-status"
	PurposeComplaint      = "complaint"
	PurposeBearerToken    = "bearer-token"
)

const (
	purposeClaim = "purpose"
	dataClaim    = "data"
)

// Signer signs and verifies dict-shaped payloads handed between processes.
// It holds a primary key and zero-or-more legacy keys; verification tries
// the primary first, then each legacy key in order, so key rotation windows
// keep old tokens verifiable.
type Signer struct {
	keys [][]byte
}

func New(secret string, legacySecrets ...string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is required")
	}

	keys := make([][]byte, 0, 1+len(legacySecrets))
	keys = append(keys, []byte(secret))
	for _, legacy := range legacySecrets {
		if strings.TrimSpace(legacy) == "" {
			continue
		}
		keys = append(keys, []byte(legacy))
	}

	return &Signer{keys: keys}, nil
}

// Sign serializes value into a signed token scoped to purpose.
func (s *Signer) Sign(purpose string, value any) (string, error) {
	if s == nil || len(s.keys) == 0 {
		return "", fmt.Errorf("signer is not initialized")
	}
	if strings.TrimSpace(purpose) == "" {
		return "", fmt.Errorf("purpose is required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		purposeClaim: purpose,
		dataClaim:    value,
	})

	signed, err := token.SignedString(deriveKey(s.keys[0], purpose))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s payload: %w", purpose, err)
	}
	return signed, nil
}

// Verify checks token against every accepted key for purpose and decodes the
// payload into out. First matching key wins. Returns ErrBadSignature when no
// key matches or the token was signed under a different purpose.
func (s *Signer) Verify(purpose string, token string, out any) error {
	if s == nil || len(s.keys) == 0 {
		return fmt.Errorf("signer is not initialized")
	}

	for _, key := range s.keys {
		claims, err := parseWithKey(token, deriveKey(key, purpose))
		if err != nil {
			continue
		}

		if claims[purposeClaim] != purpose {
			continue
		}

		raw, err := json.Marshal(claims[dataClaim])
		if err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", purpose, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", purpose, err)
		}
		return nil
	}

	return fmt.Errorf("%w: no accepted key verifies purpose %q", ErrBadSignature, purpose)
}

func parseWithKey(token string, key []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

// deriveKey binds the purpose into the HMAC key itself, so even a token with
// a forged purpose claim fails signature verification under another scope.
func deriveKey(secret []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("signer." + purpose))
	return mac.Sum(nil)
}
