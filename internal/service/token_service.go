package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"oba-connect/internal/domain"
)

// errNoSecret es un defecto de configuracion, no un token invalido.
var errNoSecret = errors.New("token signing secret not configured")

// TokenService emite y valida los JWT de acceso y refresh.
// Cada clase de token se firma con un secreto distinto: un secreto de
// acceso filtrado no permite forjar refresh tokens de larga vida.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type Claims struct {
	UserID       string `json:"uid"`
	Email        string `json:"email,omitempty"`
	Username     string `json:"username,omitempty"`
	Role         string `json:"role,omitempty"`
	TokenVersion int64  `json:"tv"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        "oba-connect",
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssuePair genera un par access+refresh para la identidad dada.
// Devuelve ademas el jti del refresh token para registrarlo en el slot.
func (s *TokenService) IssuePair(id domain.Identity, tokenVersion int64) (TokenPair, string, error) {
	if len(s.accessSecret) == 0 || len(s.refreshSecret) == 0 {
		return TokenPair{}, "", errNoSecret
	}
	now := time.Now().UTC()

	accessClaims := Claims{
		UserID:       id.ID,
		Email:        id.Email,
		Username:     id.Username,
		Role:         id.Role,
		TokenVersion: tokenVersion,
		TokenType:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(s.accessSecret)
	if err != nil {
		return TokenPair{}, "", err
	}

	jti := uuid.NewString()
	refreshClaims := Claims{
		UserID:       id.ID,
		TokenVersion: tokenVersion,
		TokenType:    "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(s.refreshSecret)
	if err != nil {
		return TokenPair{}, "", err
	}

	pair := TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}
	return pair, jti, nil
}

// ParseAccess valida un access token contra el secreto de acceso.
func (s *TokenService) ParseAccess(token string) (Claims, error) {
	claims, err := s.parse(token, s.accessSecret)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// ParseRefresh valida un refresh token contra el secreto de refresh.
// Un access token presentado aqui falla: secreto y typ no coinciden.
func (s *TokenService) ParseRefresh(token string) (Claims, error) {
	claims, err := s.parse(token, s.refreshSecret)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// Remaining devuelve la vida restante del token, acotada en cero.
func Remaining(claims Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	d := time.Until(claims.ExpiresAt.Time)
	if d < 0 {
		return 0
	}
	return d
}

func (s *TokenService) parse(token string, secret []byte) (Claims, error) {
	if len(secret) == 0 || strings.TrimSpace(token) == "" {
		return Claims{}, ErrTokenMalformed
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenMalformed
	}
	if !s.validClaims(claims) {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

func (s *TokenService) validClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return claims.Issuer == s.issuer
}
