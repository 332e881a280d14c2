// Package auth resolves client credentials to user identities.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"feedhub/pkg/types"
)

// Authenticator validates HMAC-signed bearer tokens whose subject is the
// user ID. An empty credential resolves to the anonymous user.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New creates an Authenticator with the given signing secret.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Resolve parses and verifies a credential, returning the user ID it carries.
// Returns ("", nil) for an empty credential: anonymous access is allowed for
// read-only feed queries and is rejected further up for live attaches.
func (a *Authenticator) Resolve(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}

	token, err := jwt.ParseWithClaims(credential, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidCredential
	}
	if !types.IsValidUserID(claims.Subject) {
		return "", ErrInvalidCredential
	}
	return claims.Subject, nil
}

// Issue creates a signed token for the given user, valid for ttl.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if !types.IsValidUserID(userID) {
		return "", types.ErrInvalidUserID
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
