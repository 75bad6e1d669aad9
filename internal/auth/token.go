// Package auth issues and verifies compact HMAC-signed access tokens.
// A token is base64url(claims JSON) + "." + base64url(HMAC-SHA256), which
// keeps the dependency surface at zero while staying bearer-shaped.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"`
}

func (c Claims) expired() bool {
	return time.Now().Unix() >= c.Exp
}

func (c Claims) complete() bool {
	return c.Sub != "" && c.JTI != "" && c.Exp != 0
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + signature(secret, body), nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(signature(secret, body))) {
		return Claims{}, ErrInvalidToken
	}

	claims, err := decodeClaims(body)
	if err != nil || !claims.complete() {
		return Claims{}, ErrInvalidToken
	}
	if claims.expired() {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func decodeClaims(body string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Claims{}, err
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func signature(secret []byte, body string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HashToken is used for refresh tokens so the raw value never hits storage.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
