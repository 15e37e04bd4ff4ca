// Package auth resolves tenant context from bearer tokens.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims is the tenant context of an authenticated request.
type Claims struct {
	OrgID  string
	SiteID string
	UserID string
	Token  string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

type MultiAuthenticator struct {
	// DevToken, when set, authenticates as DevClaims.
	DevToken  string
	DevClaims Claims
	JWT       *JWTAuthenticator
}

func (a *MultiAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && bearer == a.DevToken {
		claims := a.DevClaims
		if claims.UserID == "" {
			claims.UserID = "dev"
		}
		claims.Token = bearer
		return claims, nil
	}

	if a.JWT != nil {
		claims, err := a.JWT.AuthenticateBearer(bearer)
		if err == nil {
			claims.Token = bearer
			return claims, nil
		}
	}

	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
