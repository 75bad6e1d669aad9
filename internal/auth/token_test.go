package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{Sub: "usr_1", Name: "Avery", JTI: "jti_1", Exp: time.Now().Add(time.Hour).Unix()}

	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.JTI != claims.JTI {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsTamper(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{Sub: "usr_1", Name: "Avery", JTI: "jti_1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseToken(secret, token+"x"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered signature, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{Sub: "usr_1", Name: "Avery", JTI: "jti_1", Exp: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
