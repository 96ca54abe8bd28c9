// Package utils holds the access token helpers shared by the HTTP
// middleware and the presence relay.  Tokens are issued by the external
// identity service; this process only needs to verify them, and issues
// them itself for tests and local tooling.
package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinicride/escort-booking/internal/model"
)

// ErrInvalidClaims is returned for a well-signed token whose claims do
// not name a user and a known role.
var ErrInvalidClaims = errors.New("invalid token claims")

// Claims is the access token payload.  The user id travels in "id",
// which is what the identity service writes.
type Claims struct {
	UserID string     `json:"id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an HS256 token for userID valid for ttlMin minutes.
func NewAccessToken(secret, userID string, role model.Role, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns its claims.
// Only HMAC signatures are accepted.  Expired tokens yield an error
// matching jwt.ErrTokenExpired.
func ParseAccessToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidClaims
	}
	if _, ok := model.ParseRole(string(claims.Role)); !ok {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
