package portal

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
	"github.com/limamedic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard/patient", h.PatientDashboard, auth.RequireRole(string(identity.RolePatient)))
	g.GET("/dashboard/doctor", h.DoctorDashboard, auth.RequireRole(string(identity.RoleDoctor)))
	g.GET("/dashboard/receptionist", h.ReceptionistDashboard, auth.RequireRole(string(identity.RoleReceptionist)))
	g.GET("/dashboard/pharmacy", h.PharmacyDashboard, auth.RequireRole(string(identity.RolePharmacy)))

	g.GET("/appointments/pending", h.PendingAppointments, auth.RequireLogin())
	g.GET("/history", h.History, auth.RequireLogin())
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

// page starts a Page for the current user. Flashes are collected here, so
// handlers adding their own must append after calling it.
func page(c echo.Context) Page {
	return Page{User: principal(c), Flashes: session.FromContext(c).PopFlashes()}
}

func paged(c echo.Context, appts []*scheduling.Appointment) *pagination.Response {
	return pagination.Respond(appts, pagination.FromContext(c), c.Request().URL.Path)
}

func (h *Handler) PatientDashboard(c echo.Context) error {
	p := page(c)
	appts := h.svc.PatientAppointments(c.Request().Context(), p.User.Username)
	sum := summarize(appts)
	p.Summary = &sum
	p.Appointments = paged(c, appts)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DoctorDashboard(c echo.Context) error {
	p := page(c)
	doc, appts := h.svc.DoctorAppointments(c.Request().Context(), p.User.Username)
	sum := summarize(appts)
	p.Doctor = doc
	p.Summary = &sum
	p.Appointments = paged(c, appts)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ReceptionistDashboard(c echo.Context) error {
	p := page(c)
	appts, doctors := h.svc.Reception(c.Request().Context())
	sum := summarize(appts)
	p.Summary = &sum
	p.Appointments = paged(c, appts)
	p.Doctors = doctors
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PharmacyDashboard(c echo.Context) error {
	p := PharmacyPage{User: principal(c), Flashes: session.FromContext(c).PopFlashes()}
	p.Inventory, p.Suppliers = h.svc.Pharmacy(c.Request().Context())
	return c.JSON(http.StatusOK, p)
}

// PendingAppointments lists the user's own appointments. An empty list comes
// with an info flash.
func (h *Handler) PendingAppointments(c echo.Context) error {
	p := page(c)
	appts := h.svc.PatientAppointments(c.Request().Context(), p.User.Username)
	if len(appts) == 0 {
		p.Flashes = append(p.Flashes, session.Info("No tienes citas pendientes."))
	}
	p.Appointments = paged(c, appts)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) History(c echo.Context) error {
	p := page(c)
	p.Appointments = paged(c, h.svc.History(c.Request().Context(), p.User.Username))
	return c.JSON(http.StatusOK, p)
}
