package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleType set member role
type RoleType string

const (
	// RoleAdmin is the admin role
	RoleAdmin RoleType = "admin"
	// RoleMember is the member role
	RoleMember RoleType = "member"
)

// Claims structure for custom claims in JWT
type Claims struct {
	MemberID string `json:"user_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ErrNoSubject token carries neither sub nor user_id
var ErrNoSubject = errors.New("token has no subject")

// Secret Key for JWT signing, only used by local tools and tests.
// the client never validates the server's signature.
var (
	JWTSecret       = []byte("secure_secret_key")
	tokenExpiration = 60 * time.Minute
)

// GenerateJWT generates a JWT token
func GenerateJWT(memberID, role, issuer string) (string, error) {
	claims := Claims{
		MemberID: memberID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// SubjectFromToken read the user id of an opaque token without verifying it.
// accepts "Bearer " prefix; sub wins over user_id.
func SubjectFromToken(t string) (string, error) {
	t = strings.TrimSpace(strings.TrimPrefix(t, "Bearer "))
	if t == "" {
		return "", ErrNoSubject
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t, claims); err != nil {
		return "", err
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	if claims.MemberID != "" {
		return claims.MemberID, nil
	}
	return "", ErrNoSubject
}

// IsExpired check token exp claim, tokens without exp never expire
func IsExpired(t string, now time.Time) (bool, error) {
	t = strings.TrimSpace(strings.TrimPrefix(t, "Bearer "))
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t, claims); err != nil {
		return true, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, err
	}
	return !exp.After(now), nil
}
