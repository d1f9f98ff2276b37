package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/localchat/pkg/chat"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

// TokenOptions configures token signing.
type TokenOptions struct {
	Secret []byte
	// Exp is the token lifetime. Zero falls back to an hour.
	Exp time.Duration
}

type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// NewToken signs a token carrying the user identity.
func NewToken(user chat.User, opts TokenOptions) (string, time.Time, error) {
	lifetime := opts.Exp
	if lifetime == 0 {
		lifetime = time.Hour
	}
	exp := time.Now().Add(lifetime)

	claims := &Claims{
		UserID: user.ID,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "localchat",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(opts.Secret)
	if err != nil {
		return "", exp, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken parses and validates a signed token.
func VerifyToken(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case parsed != nil && parsed.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}
