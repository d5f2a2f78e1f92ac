// Package authx issues and validates the HS256 access tokens that guard the
// gateway's user routes.
package authx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ryan12324/openassistant/pkg/kernel"
)

const (
	defaultIssuer   = "openassistant"
	defaultTokenTTL = 15 * time.Minute
	audience        = "openassistant-api"
)

// Claims is the JWT payload.
type Claims struct {
	UserID kernel.UserID `json:"user_id"`
	Email  string        `json:"email"`
	Scopes []string      `json:"scopes"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// GenerateAccessToken signs a token for ac.
func (s *JWTService) GenerateAccessToken(ac kernel.AuthContext) (string, error) {
	if len(s.secret) == 0 {
		return "", authErrors.New(ErrMissingSecret)
	}

	now := s.now()
	scopes := ac.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	claims := Claims{
		UserID: ac.UserID,
		Email:  ac.Email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   ac.UserID.String(),
			Audience:  []string{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", authErrors.NewWithCause(ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry.
func (s *JWTService) ValidateAccessToken(token string) (*kernel.AuthContext, error) {
	if len(s.secret) == 0 {
		return nil, authErrors.New(ErrMissingSecret)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, authErrors.NewWithCause(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID.IsEmpty() {
		return nil, authErrors.New(ErrInvalidToken)
	}

	return &kernel.AuthContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Scopes: claims.Scopes,
	}, nil
}
