// Package token issues and verifies the signed session tokens carried in the
// session cookie. The codec is stateless: a token is a pure function of the
// claim set and the signing secret.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"emutabaah.org/internal/obs"
	"emutabaah.org/internal/policy"
)

const issuer = "mutabaah-api"

// SessionTTL bounds the staleness window of the claims snapshot. Claims are
// fixed at login time and only refreshed by a full re-issue.
const SessionTTL = 8 * time.Hour

// devSecret is the non-production fallback signing secret.
const devSecret = "mutabaah-dev-secret"

// ErrInvalidToken indicates the token failed validation. Every verification
// failure collapses into this sentinel; callers never see the cause.
var ErrInvalidToken = errors.New("token: invalid token")

// ErrMissingSecret indicates a production deployment without a signing secret.
var ErrMissingSecret = errors.New("token: session secret is not configured")

// Claims is the session claim set: a time-boxed snapshot of the employee's
// identity, role, and managed hospitals taken at login.
type Claims struct {
	Email              string   `json:"email"`
	Name               string   `json:"name"`
	NIP                string   `json:"nip"`
	Role               string   `json:"role"`
	ManagedHospitalIDs []string `json:"managedHospitalIds,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// ParsedRole returns the role claim normalized through the policy package.
func (c *Claims) ParsedRole() policy.Role { return policy.ParseRole(c.Role) }

// Actor converts the claims into a policy actor.
func (c *Claims) Actor() policy.Actor {
	return policy.Actor{
		ID:                 c.Subject,
		Role:               c.ParsedRole(),
		ManagedHospitalIDs: c.ManagedHospitalIDs,
	}
}

// Codec signs and verifies session tokens with HS256.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, for expiry-boundary tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a codec from the configured secret. In production a missing
// secret is a configuration error; elsewhere a fixed development secret is
// substituted with a one-time warning.
func NewCodec(secret string, production bool, opts ...Option) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		if production {
			return nil, ErrMissingSecret
		}
		obs.Warn("using development session secret; set MUTABAAH_SESSION_SECRET", nil)
		secret = devSecret
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Payload is the input claim set for Issue.
type Payload struct {
	UserID             string
	Email              string
	Name               string
	NIP                string
	Role               policy.Role
	ManagedHospitalIDs []string
}

// Issue signs a session token expiring SessionTTL from now.
func (c *Codec) Issue(p Payload) (string, time.Time, error) {
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return "", time.Time{}, errors.New("token: userID is required")
	}

	now := c.now().UTC()
	expiresAt := now.Add(SessionTTL)
	claims := Claims{
		Email:              strings.TrimSpace(strings.ToLower(p.Email)),
		Name:               strings.TrimSpace(p.Name),
		NIP:                strings.TrimSpace(p.NIP),
		Role:               string(p.Role),
		ManagedHospitalIDs: p.ManagedHospitalIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the claims. It fails closed:
// any parse or validation problem yields ErrInvalidToken, never a panic.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }), jwt.WithStrictDecoding())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh re-issues a token with identical claims and fresh timestamps. This
// is the only sanctioned way to extend a session past its expiry.
func (c *Codec) Refresh(claims *Claims) (string, time.Time, error) {
	return c.Issue(Payload{
		UserID:             claims.Subject,
		Email:              claims.Email,
		Name:               claims.Name,
		NIP:                claims.NIP,
		Role:               claims.ParsedRole(),
		ManagedHospitalIDs: claims.ManagedHospitalIDs,
	})
}
