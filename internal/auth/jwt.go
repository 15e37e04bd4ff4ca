package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies HS256 tokens carrying org_id, site_id and sub.
type JWTAuthenticator struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

type tenantClaims struct {
	OrgID  string `json:"org_id"`
	SiteID string `json:"site_id,omitempty"`
	jwt.RegisteredClaims
}

func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{Secret: []byte(secret), Issuer: issuer, Now: time.Now}
}

func (a *JWTAuthenticator) AuthenticateBearer(token string) (Claims, error) {
	if len(a.Secret) == 0 {
		return Claims{}, errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}
	parser := jwt.NewParser(opts...)

	claims := &tenantClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.OrgID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: org_id and sub are required", ErrInvalidToken)
	}
	return Claims{OrgID: claims.OrgID, SiteID: claims.SiteID, UserID: claims.Subject}, nil
}

// Issue signs a token for the given tenant. Used by the CLI and tests.
func (a *JWTAuthenticator) Issue(orgID, siteID, userID string, ttl time.Duration) (string, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	issuedAt := now()
	claims := tenantClaims{
		OrgID:  orgID,
		SiteID: siteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}
