package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/localchat/pkg/auth"
	"example.com/localchat/pkg/chat"
)

const AuthCookieName = "auth_token"

type AuthHandler struct {
	auth auth.Auth
}

func NewAuthHandler(a auth.Auth) *AuthHandler {
	return &AuthHandler{auth: a}
}

type LoginPayload struct {
	Name string `json:"name"`
}

type LoginResponse struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expireAt"`
	User     chat.User `json:"user"`
}

// LoginHandler establishes an identity for the chosen display name. There is
// no password: the name is the identity, and two clients logging in with the
// same name share it.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) error {
	var payload LoginPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewAPIError("invalid json", http.StatusBadRequest)
	}
	defer r.Body.Close()

	user, token, exp, err := h.auth.Login(r.Context(), payload.Name)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidName) {
			return NewAPIError(err.Error(), http.StatusBadRequest)
		}
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Expires:  exp,
		HttpOnly: true,
		Path:     "/",
	})

	return WriteJSON(w, LoginResponse{Token: token, ExpireAt: exp, User: user})
}

// LogoutHandler clears the session cookie. The token itself stays valid until
// expiry; identity is stateless.
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := sessionFromRequest(r)
	return WriteJSON(w, session.User())
}

// sessionFromRequest extracts the session from the request context. It must
// only be called from handlers behind TokenMiddleware.
func sessionFromRequest(r *http.Request) auth.Session {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		panic("session not in request context: handler not behind TokenMiddleware")
	}
	return session
}

// tokenFromRequest pulls the session token from the auth cookie or, failing
// that, a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// TokenMiddleware verifies the request's session token and attaches the
// session to the request context.
func TokenMiddleware(a auth.Auth) Middleware {
	unauthenticated := NewAPIError("unauthenticated", http.StatusUnauthorized)

	return func(next http.Handler) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			token := tokenFromRequest(r)
			if token == "" {
				return unauthenticated
			}

			session, err := a.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenInvalid) ||
					errors.Is(err, auth.ErrTokenExpired) ||
					errors.Is(err, auth.ErrUnrecognizedToken) {
					return unauthenticated
				}
				return err
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), *session)))
			return nil
		}
	}
}
