package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oba-connect/internal/domain"
)

func testIdentity() domain.Identity {
	return domain.Identity{
		ID:       "u1",
		Email:    "user@example.com",
		Username: "user1",
		Role:     domain.RoleUser,
		Status:   domain.StatusActive,
	}
}

func TestTokenService_IssueParseAccess(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 30*time.Minute)

	pair, jti, err := svc.IssuePair(testIdentity(), 3)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || jti == "" {
		t.Fatalf("expected tokens and jti")
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiresIn: %d", pair.ExpiresIn)
	}

	claims, err := svc.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "user@example.com" || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenVersion != 3 {
		t.Fatalf("expected token version 3, got %d", claims.TokenVersion)
	}
}

func TestTokenService_ExpiredAccessToken(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Millisecond, 30*time.Minute)

	pair, _, err := svc.IssuePair(testIdentity(), 0)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := svc.ParseAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenService_RejectsAccessTokenInRefreshParse(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 30*time.Minute)
	pair, _, err := svc.IssuePair(testIdentity(), 0)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := svc.ParseRefresh(pair.AccessToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for access token in refresh parse, got %v", err)
	}
	if _, err := svc.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for refresh token in access parse, got %v", err)
	}
}

func TestTokenService_DistinctSecrets(t *testing.T) {
	// Un secreto de acceso filtrado no debe validar refresh tokens.
	svc := NewTokenService("same-secret", "same-secret", 15*time.Minute, 30*time.Minute)
	other := NewTokenService("same-secret", "other-secret", 15*time.Minute, 30*time.Minute)

	pair, _, err := other.IssuePair(testIdentity(), 0)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := svc.ParseRefresh(pair.RefreshToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed with wrong refresh secret, got %v", err)
	}
}

func TestTokenService_RejectsWrongIssuer(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 30*time.Minute)
	now := time.Now().UTC()
	claims := Claims{
		UserID:    "u1",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-issuer",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.ParseAccess(signed); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for wrong issuer, got %v", err)
	}
}

func TestTokenService_RejectsEmptySecret(t *testing.T) {
	svc := NewTokenService("", "", 15*time.Minute, 30*time.Minute)
	_, _, err := svc.IssuePair(testIdentity(), 0)
	if !errors.Is(err, errNoSecret) {
		t.Fatalf("expected config error on empty secret, got %v", err)
	}
	if errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("a missing secret must not look like a bad token")
	}
}

func TestRemaining(t *testing.T) {
	now := time.Now().UTC()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}}
	if d := Remaining(claims); d <= 9*time.Minute || d > 10*time.Minute {
		t.Fatalf("unexpected remaining: %v", d)
	}

	expired := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}}
	if d := Remaining(expired); d != 0 {
		t.Fatalf("expected zero remaining for expired claims, got %v", d)
	}
	if d := Remaining(Claims{}); d != 0 {
		t.Fatalf("expected zero remaining without expiry, got %v", d)
	}
}
