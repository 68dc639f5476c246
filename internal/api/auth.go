package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

const (
	HeaderAPIKey       = "X-API-Key"
	HeaderOrganization = "X-Organization-Id"
	SessionCookie      = "sb-access-token"
)

// ErrUnauthenticated is returned when no acceptable credential was presented.
var ErrUnauthenticated = errors.New("unauthenticated")

type callerKey struct{}

// WithCaller stores the authenticated caller on ctx.
func WithCaller(ctx context.Context, c core.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by the auth middleware.
func CallerFrom(ctx context.Context) (core.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(core.Caller)
	return c, ok && c.Valid()
}

// Members is the part of the store used to check organization membership.
type Members interface {
	IsMember(ctx context.Context, orgID, userID string) (bool, error)
	AuthenticateAPIKey(ctx context.Context, presented string) (core.Caller, error)
}

// Authenticator resolves the caller of a request. In order: the trusted
// internal headers, an API key, a Supabase session JWT.
type Authenticator struct {
	members        Members
	internalSecret string
	jwtSecret      []byte
}

func NewAuthenticator(members Members, internalSecret, jwtSecret string) *Authenticator {
	a := &Authenticator{members: members, internalSecret: internalSecret}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

// SessionClaims are the Supabase access token claims we read.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolve authenticates r.
func (a *Authenticator) Resolve(r *http.Request) (core.Caller, error) {
	ctx := r.Context()
	h := r.Header

	// Identity headers are only honored with the shared secret; a request
	// carrying them without it never falls through to the other methods.
	if h.Get(core.HeaderInternalSecret) != "" || h.Get(core.HeaderInternalUser) != "" || h.Get(core.HeaderInternalOrg) != "" {
		secret := h.Get(core.HeaderInternalSecret)
		if a.internalSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(a.internalSecret)) != 1 {
			return core.Caller{}, errors.Wrap(ErrUnauthenticated, "bad internal secret")
		}
		c := core.Caller{UserID: h.Get(core.HeaderInternalUser), OrganizationID: h.Get(core.HeaderInternalOrg)}
		if !c.Valid() {
			return core.Caller{}, errors.Wrap(ErrUnauthenticated, "internal identity incomplete")
		}
		return c, nil
	}

	if key := h.Get(HeaderAPIKey); key != "" {
		c, err := a.members.AuthenticateAPIKey(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrInvalidCredentials) {
				return core.Caller{}, errors.Wrap(ErrUnauthenticated, "invalid api key")
			}
			return core.Caller{}, err
		}
		return c, nil
	}

	token := bearer(r)
	if token == "" {
		return core.Caller{}, ErrUnauthenticated
	}
	userID, err := a.verifySession(token)
	if err != nil {
		return core.Caller{}, err
	}
	org := strings.TrimSpace(h.Get(HeaderOrganization))
	if org == "" {
		return core.Caller{}, errors.Wrap(ErrUnauthenticated, HeaderOrganization+" header required")
	}
	ok, err := a.members.IsMember(ctx, org, userID)
	if err != nil {
		return core.Caller{}, err
	}
	if !ok {
		return core.Caller{}, errors.Wrap(ErrUnauthenticated, "not a member of the organization")
	}
	return core.Caller{UserID: userID, OrganizationID: org}, nil
}

func (a *Authenticator) verifySession(token string) (string, error) {
	if a.jwtSecret == nil {
		return "", errors.Wrap(ErrUnauthenticated, "session tokens are not accepted")
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", errors.Wrap(ErrUnauthenticated, "invalid session token")
	}
	if claims.Subject == "" {
		return "", errors.Wrap(ErrUnauthenticated, "session token has no subject")
	}
	return claims.Subject, nil
}

func bearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}

// RequireCaller rejects unauthenticated requests and stores the caller on the
// request context.
func (a *Authenticator) RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := a.Resolve(c.Request())
		if err != nil {
			return err
		}
		c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
		return next(c)
	}
}

func callerOf(c echo.Context) core.Caller {
	caller, _ := CallerFrom(c.Request().Context())
	return caller
}
