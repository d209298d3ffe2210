// Package auth issues and verifies the bearer tokens that event publishers
// present on the push endpoints.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypePush is the typ claim of push tokens.
const TokenTypePush = "push"

// Audience is the aud claim required on every push token.
const Audience = "docaudit"

// DefaultPushTokenExpiry is the lifetime of tokens minted without an explicit TTL.
const DefaultPushTokenExpiry = time.Hour

// Default leeway for token validation.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrEmptySubject is returned when a token is requested without a subject.
	ErrEmptySubject = errors.New("subject cannot be empty")

	// ErrEmptySecret is returned when a verifier is built without a signing secret.
	ErrEmptySecret = errors.New("signing secret cannot be empty")
)

// Claims are the JWT claims of a push token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// PushTokenVerifier signs and validates push tokens with HS256.
// Supports dual-key rotation: tokens are signed with the current secret but
// validate against either the current or the previous one.
type PushTokenVerifier struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	now            func() time.Time
}

// NewPushTokenVerifier creates a verifier. previousSecret may be empty when no
// rotation is in progress.
func NewPushTokenVerifier(currentSecret, previousSecret string) (*PushTokenVerifier, error) {
	if currentSecret == "" {
		return nil, ErrEmptySecret
	}
	v := &PushTokenVerifier{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
		now:           time.Now,
	}
	if previousSecret != "" {
		v.previousSecret = []byte(previousSecret)
	}
	return v, nil
}

// WithLeeway returns a copy of v using leeway for time-based claims.
func (v *PushTokenVerifier) WithLeeway(leeway time.Duration) *PushTokenVerifier {
	cp := *v
	cp.leeway = leeway
	return &cp
}

// Generate mints a push token for subject, valid for ttl (DefaultPushTokenExpiry
// when ttl <= 0).
func (v *PushTokenVerifier) Generate(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = DefaultPushTokenExpiry
	}

	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypePush,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.currentSecret)
}

// Verify parses tokenString, trying the current secret first and then the
// previous one.
func (v *PushTokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims, err := v.parse(tokenString, v.currentSecret)
	if err == nil {
		return claims, nil
	}

	if v.previousSecret != nil {
		if claims, prevErr := v.parse(tokenString, v.previousSecret); prevErr == nil {
			return claims, nil
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (v *PushTokenVerifier) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	},
		jwt.WithLeeway(v.leeway),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != TokenTypePush {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
