// Package auth verifies the platform-issued join tokens presented by
// clients on join-room and on the REST credential refresh endpoint.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liveclass/liveclass/pkg/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Identity is the structured record carried by a verified token. The role,
// avatar and email travel in the claims so the gateway can build the
// participant record without a user-service round trip.
type Identity struct {
	ID     string
	Name   string
	Avatar string
	Email  string
}

type Claims struct {
	jwt.RegisteredClaims
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
}

func NewVerifier(conf config.Auth) *Verifier {
	return &Verifier{
		secret:   []byte(conf.Secret),
		issuer:   conf.Issuer,
		audience: conf.Audience,
		skew:     conf.ClockSkew,
	}
}

// Verify parses and validates a signed token, returning the identity.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.skew))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, ErrInvalidToken
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		ID:     claims.Subject,
		Name:   claims.Name,
		Avatar: claims.Avatar,
		Email:  claims.Email,
	}, nil
}

// Sign issues a token for the identity; used by tests and local tooling
// (production tokens come from the account service).
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-v.skew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:   id.Name,
		Avatar: id.Avatar,
		Email:  id.Email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
