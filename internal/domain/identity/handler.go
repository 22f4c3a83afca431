package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "identity").Logger()}
}

// RegisterRoutes mounts the public pages. throttle, when given, guards the
// two credential posts.
func (h *Handler) RegisterRoutes(g *echo.Group, throttle ...echo.MiddlewareFunc) {
	g.GET("/", h.Home)
	g.GET("/register", h.RegisterForm)
	g.POST("/register", h.Register, throttle...)
	g.GET("/login", h.LoginForm)
	g.POST("/login", h.Login, throttle...)
	g.GET("/logout", h.Logout)
	g.POST("/logout", h.Logout)
}

// HomePage is the landing page: the doctor directory and the session user.
type HomePage struct {
	User        *auth.Principal `json:"user,omitempty"`
	Specialties []string        `json:"especialidades"`
	Doctors     []*Doctor       `json:"medicos"`
	Flashes     []session.Flash `json:"flashes,omitempty"`
}

type FormPage struct {
	Roles   []Role          `json:"roles"`
	Flashes []session.Flash `json:"flashes,omitempty"`
}

var formRoles = []Role{RolePatient, RoleDoctor, RoleReceptionist, RolePharmacy}

type loginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
	Role       string `json:"rol" form:"rol"`
}

// Home lists every doctor. A store failure shows an empty directory instead
// of an error page.
func (h *Handler) Home(c echo.Context) error {
	page := HomePage{Specialties: []string{}, Doctors: []*Doctor{}}
	if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok {
		page.User = &p
	}
	if doctors, err := h.svc.ListDoctors(c.Request().Context()); err == nil {
		page.Doctors = doctors
		page.Specialties = specialtiesOf(doctors)
	}
	page.Flashes = session.FromContext(c).PopFlashes()
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) RegisterForm(c echo.Context) error {
	return c.JSON(http.StatusOK, FormPage{Roles: formRoles, Flashes: session.FromContext(c).PopFlashes()})
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	_, err := h.svc.Register(c.Request().Context(), in)
	switch {
	case err == nil:
		return session.Redirect(c, "/login", session.Success("Registro exitoso. Por favor inicia sesión."))
	case errors.Is(err, ErrUsernameTaken):
		return session.Redirect(c, "/register", session.Error("El usuario ya existe."))
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrInvalidRole):
		return session.Redirect(c, "/register", session.Error("Completa usuario, nombre, contraseña y un rol válido."))
	default:
		h.logger.Error().Err(err).Str("username", in.Username).Msg("register failed")
		return session.Redirect(c, "/register", session.Error("No se pudo completar el registro, intenta de nuevo."))
	}
}

func (h *Handler) LoginForm(c echo.Context) error {
	return c.JSON(http.StatusOK, FormPage{Roles: formRoles, Flashes: session.FromContext(c).PopFlashes()})
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Authenticate(c.Request().Context(), req.Identifier, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return session.Redirect(c, "/login", session.Error("Credenciales inválidas."))
		}
		h.logger.Error().Err(err).Msg("authenticate failed")
		return session.Redirect(c, "/login", session.Error("No se pudo iniciar sesión, intenta de nuevo."))
	}
	err = auth.Login(c, auth.Principal{
		Username: u.Username,
		Name:     u.Name,
		Role:     string(u.Role),
		Email:    u.Email,
	})
	if err != nil {
		return err
	}
	return session.Redirect(c, u.Role.DashboardPath())
}

func (h *Handler) Logout(c echo.Context) error {
	auth.Logout(c)
	return session.Redirect(c, "/", session.Success("Sesión cerrada"))
}
