// Package auth issues and verifies the identity carried by API clients.
// There is no credential beyond a client-chosen display name: the user ID is
// the trimmed name itself, so two logins with the same name share one
// identity. The signed token only transports that identity between requests;
// it does not make the authorization checks elsewhere any less advisory.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/localchat/pkg/chat"
)

var ErrInvalidName = errors.New("invalid name")

var validate = validator.New()

// Session is the identity attached to a verified request.
type Session struct {
	UserID string
	Name   string
}

func (s Session) User() chat.User {
	return chat.User{ID: s.UserID, Name: s.Name}
}

type Auth interface {
	// Login establishes an identity for the given display name and returns a
	// token carrying it.
	Login(ctx context.Context, name string) (user chat.User, token string, exp time.Time, err error)
	// Verify resolves a token back to its session.
	Verify(ctx context.Context, token string) (*Session, error)
}

type LoginInput struct {
	Name string `json:"name" validate:"required,max=20"`
}

func (i *LoginInput) Validate() error {
	i.Name = strings.TrimSpace(i.Name)
	return validate.Struct(i)
}

// TokenAuth is a stateless Auth backed by signed tokens.
type TokenAuth struct {
	opts TokenOptions
}

func NewTokenAuth(opts TokenOptions) *TokenAuth {
	return &TokenAuth{opts: opts}
}

func (a *TokenAuth) Login(ctx context.Context, name string) (chat.User, string, time.Time, error) {
	input := LoginInput{Name: name}
	if err := input.Validate(); err != nil {
		return chat.User{}, "", time.Time{}, ErrInvalidName
	}

	user := chat.User{ID: input.Name, Name: input.Name}
	token, exp, err := NewToken(user, a.opts)
	if err != nil {
		return chat.User{}, "", time.Time{}, err
	}
	return user, token, exp, nil
}

func (a *TokenAuth) Verify(_ context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, a.opts.Secret)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: claims.UserID, Name: claims.Name}, nil
}
