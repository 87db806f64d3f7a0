// Package auth issues and verifies the signed bearer tokens that agents
// present to the run-log endpoint.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// AgentClaims identifies the agent behind a run-log submission.
type AgentClaims struct {
	AgentID string `json:"agentId"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

const defaultAgentTokenTTL = 24 * time.Hour

// IssueAgentToken signs a token for an agent identity. A zero ttl uses the
// one-day default.
func IssueAgentToken(secret []byte, agentID, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultAgentTokenTTL
	}
	claims := AgentClaims{
		AgentID: agentID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign agent token: %w", err)
	}
	return signed, nil
}

// ParseAgentToken verifies signature and expiry and returns the claims.
func ParseAgentToken(secret []byte, tokenString string) (AgentClaims, error) {
	var claims AgentClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AgentClaims{}, ErrExpiredToken
		}
		return AgentClaims{}, ErrInvalidToken
	}
	if !token.Valid || claims.AgentID == "" {
		return AgentClaims{}, ErrInvalidToken
	}
	return claims, nil
}
