// Package session bridges the transport layer (request cookies) to the token
// codec and carries the resolved session through the request context.
package session

import (
	"context"
	"net/http"
	"time"

	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/token"
)

// CookieName is the session cookie read and written by the accessor.
const CookieName = "session"

// Session is the typed view of verified claims for one request.
type Session struct {
	UserID             string
	Email              string
	Name               string
	NIP                string
	Role               policy.Role
	ManagedHospitalIDs []string
	IssuedAt           time.Time
	ExpiresAt          time.Time
}

// Actor returns the policy actor for this session.
func (s *Session) Actor() policy.Actor {
	return policy.Actor{
		ID:                 s.UserID,
		Role:               s.Role,
		ManagedHospitalIDs: s.ManagedHospitalIDs,
	}
}

// Accessor reads and writes the session cookie.
type Accessor struct {
	codec  *token.Codec
	secure bool
}

// NewAccessor builds an accessor. secure controls the cookie's Secure
// attribute and should be true in production.
func NewAccessor(codec *token.Codec, secure bool) *Accessor {
	return &Accessor{codec: codec, secure: secure}
}

// Read resolves the session from the request cookie. Absent, invalid and
// expired cookies all yield nil; this function never errors.
func (a *Accessor) Read(r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	claims, err := a.codec.Verify(c.Value)
	if err != nil {
		return nil
	}
	return fromClaims(claims)
}

// Write sets the session cookie on the outbound response.
func (a *Accessor) Write(w http.ResponseWriter, signed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(token.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie. Clearing twice is safe.
func (a *Accessor) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func fromClaims(c *token.Claims) *Session {
	s := &Session{
		UserID:             c.UserID(),
		Email:              c.Email,
		Name:               c.Name,
		NIP:                c.NIP,
		Role:               c.ParsedRole(),
		ManagedHospitalIDs: c.ManagedHospitalIDs,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

type sessionContextKey struct{}

// WithSession attaches the session to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext extracts the session attached by the request gate.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}
