package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/waldo1234567/task-management/domain"
)

// Auth validates incoming bearer tokens. Production mode verifies RS256
// signatures against a JWKS; test mode accepts HS256 tokens signed with
// TEST_JWT_SECRET.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}
	return a
}

// MemberFromAuthHeader extracts the authenticated member from an
// Authorization header.
func (a *Auth) MemberFromAuthHeader(h string) (domain.Member, error) {
	if h == "" {
		return domain.Member{}, errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return domain.Member{}, errors.New("bad auth header")
	}

	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return domain.Member{}, errors.New("bad auth header")
	}

	if a.TestMode {
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
		if err != nil {
			return domain.Member{}, err
		}
		return memberFromClaims(token.Claims)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(tokenStr, a.JWKS.Keyfunc)
	if err != nil {
		return domain.Member{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Member{}, errors.New("invalid claims")
	}
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Member{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Member{}, errors.New("token not valid yet")
	}
	if !claims.VerifyAudience(a.Audience, false) {
		return domain.Member{}, errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(a.Issuer, false) {
		return domain.Member{}, errors.New("invalid issuer")
	}
	return memberFromClaims(claims)
}

func memberFromClaims(c jwt.Claims) (domain.Member, error) {
	claims, ok := c.(jwt.MapClaims)
	if !ok {
		return domain.Member{}, errors.New("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Member{}, errors.New("missing sub")
	}
	m := domain.Member{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		m.DisplayName = name
	}
	return m, nil
}
