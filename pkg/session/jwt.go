package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the payload minted into a session token: who the caller is,
// which account (if any) their user row is linked to, and which provider
// bootstrapped the session.
type Claims struct {
	Email     string `json:"email"`
	AccountID string `json:"account_id,omitempty"`
	Provider  string `json:"provider"`
	jwt.RegisteredClaims
}

// tokenIssuer mints and verifies short-lived HS256 session tokens. These
// authenticate convenience endpoints only — every chain-mutating request
// still goes through the signed-header device authentication scheme.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	return &tokenIssuer{secret: []byte(secret), ttl: ttl}
}

// issue mints a session token for userID/accountID, issued at now.
func (t *tokenIssuer) issue(userID, email, accountID, provider string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Email:     email,
		AccountID: accountID,
		Provider:  provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify parses and validates a session token, returning its claims.
func (t *tokenIssuer) verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("session: token is invalid")
	}
	return claims, nil
}
