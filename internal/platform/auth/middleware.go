package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/limamedic/clinic/internal/platform/session"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	PrincipalKey contextKey = "principal"
)

const sessionUserKey = "user"

// Principal is the logged-in user as kept in the session.
type Principal struct {
	Username string `json:"username"`
	Name     string `json:"nombre"`
	Role     string `json:"rol"`
	Email    string `json:"email,omitempty"`
}

// Login stores p in the session under a fresh session id.
func Login(c echo.Context, p Principal) error {
	session.Renew(c)
	return session.FromContext(c).Set(sessionUserKey, p)
}

// Logout drops the principal and every other session value (including any
// booking draft).
func Logout(c echo.Context) {
	session.FromContext(c).Clear()
}

// SessionMiddleware copies the session's principal, if any, onto the request
// context. It must run after the session middleware.
func SessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var p Principal
			found, err := session.FromContext(c).Get(sessionUserKey, &p)
			if err != nil || !found || p.Username == "" {
				return next(c)
			}
			c.Set("user", p.Username)
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// WithPrincipal returns ctx carrying p, as SessionMiddleware would set it.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	ctx = context.WithValue(ctx, UserIDKey, p.Username)
	return context.WithValue(ctx, UserRolesKey, []string{p.Role})
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
