// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small consumer-side interfaces.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/gatekeeper/pkg/uuid"
)

// # Token Types

// TokenType distinguishes access tokens from refresh tokens inside the claims.
type TokenType string

const (
	// TokenAccess proves identity for API calls.
	TokenAccess TokenType = "ACCESS"

	// TokenRefresh is exchanged for a new token pair.
	TokenRefresh TokenType = "REFRESH"
)

// minSecretLength is the shortest HMAC secret accepted for HS256 (256 bits).
const minSecretLength = 32

// ErrInvalidToken is returned by [TokenCodec.Claims] for any parse or validation failure.
var ErrInvalidToken = errors.New("sec: invalid token")

// Claims represents the payload embedded inside both access and refresh tokens.
//
// # Why custom claims?
//
// By embedding the email and roles directly inside the JWT, the authenticate
// middleware can reconstruct the caller WITHOUT querying the database on every
// request. Refresh tokens carry an empty roles array.
type Claims struct {
	jwt.RegisteredClaims

	Email string    `json:"email"`
	Roles []string  `json:"roles"`
	Type  TokenType `json:"type"`
}

// UserID returns the principal id stored in the subject claim.
func (claims *Claims) UserID() string {
	return claims.Subject
}

// HasRole reports whether the claims grant at least the given role.
func (claims *Claims) HasRole(target UserRole) bool {
	for _, role := range claims.Roles {
		if UserRole(role).AtLeast(target) {
			return true
		}
	}
	return false
}

// TokenCodec signs, verifies and parses identity tokens using HS256.
//
// # Security Boundary
//
// A token minted by one codec never validates against a codec configured with
// a different secret or issuer. Expiry is strict: there is no leeway.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec creates a new TokenCodec.
func NewTokenCodec(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("sec: jwt secret must be at least %d bytes", minSecretLength)
	}
	if issuer == "" {
		return nil, errors.New("sec: jwt issuer is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("sec: token ttl must be positive")
	}

	return &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and validating tokens.
func (codec *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	codec.now = now
	return codec
}

// AccessTTL returns the configured lifetime of access tokens.
func (codec *TokenCodec) AccessTTL() time.Duration {
	return codec.accessTTL
}

// RefreshTTL returns the configured lifetime of refresh tokens.
func (codec *TokenCodec) RefreshTTL() time.Duration {
	return codec.refreshTTL
}

// # Issuance

// IssueAccess creates a signed access token carrying the principal's roles.
func (codec *TokenCodec) IssueAccess(principalID, email string, roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	return codec.issue(principalID, email, roles, TokenAccess, codec.accessTTL)
}

// IssueRefresh creates a signed refresh token. Refresh tokens never carry roles.
func (codec *TokenCodec) IssueRefresh(principalID, email string) (string, error) {
	return codec.issue(principalID, email, []string{}, TokenRefresh, codec.refreshTTL)
}

func (codec *TokenCodec) issue(principalID, email string, roles []string, tokenType TokenType, timeToLive time.Duration) (string, error) {
	currentTime := codec.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps two tokens minted within the same second distinct.
			ID:        uuid.New(),
			Subject:   principalID,
			Issuer:    codec.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Email: email,
		Roles: roles,
		Type:  tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(codec.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// # Verification

// Validate reports whether the token has a valid signature, issuer and expiry.
// It never returns an error: malformed, mis-signed and expired tokens are all false.
func (codec *TokenCodec) Validate(tokenString string) bool {
	_, err := codec.Claims(tokenString)
	return err == nil
}

// Claims verifies the token and returns its payload.
//
// Every failure collapses into [ErrInvalidToken] so callers cannot tell an
// expired token from a tampered one.
func (codec *TokenCodec) Claims(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(codec.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(codec.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return codec.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IsAccess reports whether the token is a valid access token.
func (codec *TokenCodec) IsAccess(tokenString string) bool {
	claims, err := codec.Claims(tokenString)
	return err == nil && claims.Type == TokenAccess
}

// IsRefresh reports whether the token is a valid refresh token.
func (codec *TokenCodec) IsRefresh(tokenString string) bool {
	claims, err := codec.Claims(tokenString)
	return err == nil && claims.Type == TokenRefresh
}

// ExpiresAt returns the expiry of a valid token.
func (codec *TokenCodec) ExpiresAt(tokenString string) (time.Time, error) {
	claims, err := codec.Claims(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}
