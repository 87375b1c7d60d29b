package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair is returned by every login endpoint.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Issuer signs HS256 access and refresh tokens.
type Issuer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(key []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (i *Issuer) sign(subject, typ string, roles []string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles:     roles,
		TokenType: typ,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	return s, exp, err
}

// Issue creates a fresh access/refresh pair for accountID.
func (i *Issuer) Issue(accountID string, roles []string) (*TokenPair, error) {
	if accountID == "" {
		return nil, errors.New("issue token: empty subject")
	}
	access, accessExp, err := i.sign(accountID, TokenAccess, roles, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := i.sign(accountID, TokenRefresh, roles, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh, AccessExpiresAt: accessExp, RefreshExpiresAt: refreshExp}, nil
}

// ParseRefresh validates a refresh token and returns its claims.
func (i *Issuer) ParseRefresh(token string) (*Claims, error) {
	claims, err := ParseToken(token, i.key)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenRefresh {
		return nil, errors.New("not a refresh token")
	}
	return claims, nil
}
