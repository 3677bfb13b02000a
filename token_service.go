package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Token purposes accepted by the trapdoor adapter and the recover flow.
const (
	TokenPurposeLogin   = "one-shot-login"
	TokenPurposeRecover = "password-recover"
)

// TrapdoorClaims are the claims carried by a one-shot token.
type TrapdoorClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose,omitempty"`
}

// TokenService mints and validates the short-lived HS256 tokens used for
// trapdoor logins and password recovery links.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		logger:     logger,
	}
}

// Mint signs a one-shot token for the given subject and purpose.
func (ts *TokenService) Mint(subject, purpose string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryBadInput)
	}

	now := time.Now()
	claims := &TrapdoorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Validate parses a token string and returns its subject when the token is
// genuine, unexpired, and minted for the expected purpose.
func (ts *TokenService) Validate(raw, purpose string) (string, error) {
	claims := &TrapdoorClaims{}

	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, "invalid token")
	}

	if claims.Purpose != purpose {
		ts.logger.Warn("token purpose mismatch: want %s got %s", purpose, claims.Purpose)
		return "", errors.New("invalid token", errors.CategoryAuth)
	}

	return claims.Subject, nil
}
