package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CookieName = "clinic_session"

	contextKey        = "session"
	managerContextKey = "session_manager"
)

// Manager ties a Store to the signed cookie that names sessions.
type Manager struct {
	store  Store
	codec  *Codec
	ttl    time.Duration
	secure bool
	logger zerolog.Logger
}

func NewManager(store Store, codec *Codec, ttl time.Duration, secure bool, logger zerolog.Logger) *Manager {
	return &Manager{store: store, codec: codec, ttl: ttl, secure: secure, logger: logger}
}

// Middleware loads the visitor's session before the handler runs and saves it
// afterwards when the handler changed it.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := m.load(c)
			c.Set(contextKey, sess)
			c.Set(managerContextKey, m)
			if sess.isNew {
				m.setCookie(c, sess.ID)
			}

			err := next(c)

			ctx := c.Request().Context()
			if sess.previous != "" {
				if dErr := m.store.Delete(ctx, sess.previous); dErr != nil {
					m.logger.Warn().Err(dErr).Msg("failed to delete replaced session")
				}
			}
			if sess.modified {
				if sErr := m.store.Save(ctx, sess.ID, sess.values, m.ttl); sErr != nil {
					m.logger.Error().Err(sErr).Str("request_id", requestID(c)).Msg("failed to save session")
				}
			}
			return err
		}
	}
}

func (m *Manager) load(c echo.Context) *Session {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return newSession(uuid.NewString(), nil, true)
	}
	id, err := m.codec.Decode(cookie.Value)
	if err != nil {
		return newSession(uuid.NewString(), nil, true)
	}
	values, err := m.store.Load(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Str("request_id", requestID(c)).Msg("failed to load session, starting empty")
		}
		return newSession(id, nil, false)
	}
	return newSession(id, values, false)
}

func (m *Manager) setCookie(c echo.Context, id string) {
	token, err := m.codec.Encode(id, m.ttl)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to sign session cookie")
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// FromContext returns the request's session. Outside the middleware (tests,
// tools) it returns a fresh session stored on the context so later calls see
// the same value.
func FromContext(c echo.Context) *Session {
	if s, ok := c.Get(contextKey).(*Session); ok {
		return s
	}
	s := New(uuid.NewString())
	c.Set(contextKey, s)
	return s
}

// Renew moves the session's values to a fresh id and issues a new cookie.
// Call it when the visitor's privilege changes (login) before writing the
// response.
func Renew(c echo.Context) {
	sess := FromContext(c)
	if sess.previous == "" && !sess.isNew {
		sess.previous = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.modified = true
	if m, ok := c.Get(managerContextKey).(*Manager); ok {
		m.setCookie(c, sess.ID)
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
