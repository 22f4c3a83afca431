package scheduling

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
	"github.com/limamedic/clinic/internal/platform/tabular"
)

// DoctorDirectory is what the wizard needs to offer doctors.
type DoctorDirectory interface {
	DoctorLookup
	Specialties(ctx context.Context) ([]string, error)
	DoctorsBySpecialty(ctx context.Context, specialty string) ([]*identity.Doctor, error)
}

type Handler struct {
	svc       *Service
	directory DoctorDirectory
}

func NewHandler(svc *Service, directory DoctorDirectory) *Handler {
	return &Handler{svc: svc, directory: directory}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	// Booking wizard – patients only
	booking := g.Group("/booking", auth.RequireRole(string(identity.RolePatient)))
	booking.GET("", h.SpecialtyStep)
	booking.POST("", h.ChooseSpecialty)
	booking.GET("/doctor", h.DoctorStep)
	booking.POST("/doctor", h.ChooseDoctor)
	booking.GET("/time", h.TimeStep)
	booking.POST("/time", h.ChooseTime)
	booking.GET("/confirm", h.ConfirmStep)
	booking.POST("/confirm", h.Confirm)
	booking.GET("/pay", h.PayStep)
	booking.POST("/pay", h.Pay)

	// Mark attended – doctor, receptionist
	staff := auth.RequireRole(string(identity.RoleDoctor), string(identity.RoleReceptionist))
	g.GET("/appointments/:id/attend", h.MarkAttended, staff)
	g.POST("/appointments/:id/attend", h.MarkAttended, staff)
}

// StepPage is the data behind one wizard page.
type StepPage struct {
	Step        Step               `json:"step"`
	Draft       *Draft             `json:"draft"`
	Specialties []string           `json:"especialidades,omitempty"`
	Doctors     []*identity.Doctor `json:"medicos,omitempty"`
	Doctor      *identity.Doctor   `json:"medico,omitempty"`
	Slots       []string           `json:"horarios,omitempty"`
	Methods     []string           `json:"metodos,omitempty"`
	Resume      Step               `json:"continuar,omitempty"`
	Flashes     []session.Flash    `json:"flashes,omitempty"`
}

func (h *Handler) page(c echo.Context, step Step, d *Draft) StepPage {
	return StepPage{Step: step, Draft: d, Flashes: session.FromContext(c).PopFlashes()}
}

// -- Step 1: specialty and date --

// SpecialtyStep starts the wizard. A patient with a booking in progress is
// pointed at the step where it left off.
func (h *Handler) SpecialtyStep(c echo.Context) error {
	sess := session.FromContext(c)
	d := LoadDraft(sess)
	p := h.page(c, StepSpecialty, d)
	if HasDraft(sess) {
		if next := d.Next(); next != StepSpecialty {
			p.Resume = next
		}
	}
	specialties, err := h.directory.Specialties(c.Request().Context())
	if err != nil {
		h.svc.logger.Warn().Err(err).Msg("specialties unavailable")
		specialties = []string{}
	}
	p.Specialties = specialties
	return c.JSON(http.StatusOK, p)
}

type specialtyForm struct {
	Specialty string `json:"especialidad" form:"especialidad"`
	Date      string `json:"fecha" form:"fecha"`
}

func (h *Handler) ChooseSpecialty(c echo.Context) error {
	var f specialtyForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess := session.FromContext(c)
	d := &Draft{}
	if err := d.ChooseSpecialty(f.Specialty, f.Date); err != nil {
		return h.fail(c, err, StepSpecialty)
	}
	if err := SaveDraft(sess, d); err != nil {
		return err
	}
	return session.Redirect(c, string(StepDoctor))
}

// -- Step 2: doctor --

func (h *Handler) DoctorStep(c echo.Context) error {
	d := LoadDraft(session.FromContext(c))
	if d.Specialty == "" {
		return h.fail(c, d.ChooseDoctor(0), StepSpecialty)
	}
	p := h.page(c, StepDoctor, d)
	doctors, err := h.directory.DoctorsBySpecialty(c.Request().Context(), d.Specialty)
	if err != nil {
		h.svc.logger.Warn().Err(err).Str("specialty", d.Specialty).Msg("doctor list unavailable")
		doctors = []*identity.Doctor{}
	}
	p.Doctors = doctors
	return c.JSON(http.StatusOK, p)
}

type doctorForm struct {
	DoctorID string `json:"medico_id" form:"medico_id"`
}

func (h *Handler) ChooseDoctor(c echo.Context) error {
	var f doctorForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess := session.FromContext(c)
	d := LoadDraft(sess)
	id, _ := identity.ParseID(f.DoctorID)
	if err := d.ChooseDoctor(id); err != nil {
		return h.fail(c, err, StepDoctor)
	}
	doc, err := h.directory.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, StepDoctor)
	}
	if doc.Specialty != d.Specialty {
		return h.fail(c, redirectTo(StepDoctor, "El médico no atiende esa especialidad"), StepDoctor)
	}
	if err := SaveDraft(sess, d); err != nil {
		return err
	}
	return session.Redirect(c, string(StepTime))
}

// -- Step 3: time --

// doctorOrPlaceholder keeps the time step usable when the doctor row is gone.
func (h *Handler) doctorOrPlaceholder(ctx context.Context, id int64) *identity.Doctor {
	doc, err := h.directory.GetDoctor(ctx, id)
	if err != nil {
		h.svc.logger.Warn().Err(err).Int64("doctor_id", id).Msg("doctor lookup failed")
		return &identity.Doctor{ID: id, Name: "Médico"}
	}
	return doc
}

func (h *Handler) TimeStep(c echo.Context) error {
	d := LoadDraft(session.FromContext(c))
	if d.DoctorID == 0 {
		return h.fail(c, d.ChooseTime(""), StepDoctor)
	}
	ctx := c.Request().Context()
	p := h.page(c, StepTime, d)
	p.Doctor = h.doctorOrPlaceholder(ctx, d.DoctorID)
	p.Slots = h.svc.OpenSlots(ctx, p.Doctor, d.Date)
	return c.JSON(http.StatusOK, p)
}

type timeForm struct {
	Time string `json:"hora" form:"hora"`
}

func (h *Handler) ChooseTime(c echo.Context) error {
	var f timeForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess := session.FromContext(c)
	d := LoadDraft(sess)
	if err := d.ChooseTime(f.Time); err != nil {
		return h.fail(c, err, StepTime)
	}
	if err := h.svc.CheckSlot(c.Request().Context(), d); err != nil {
		return h.fail(c, err, StepTime)
	}
	if err := SaveDraft(sess, d); err != nil {
		return err
	}
	return session.Redirect(c, string(StepConfirm))
}

// -- Step 4: confirm --

func (h *Handler) ConfirmStep(c echo.Context) error {
	d := LoadDraft(session.FromContext(c))
	if d.Time == "" {
		return h.fail(c, d.Confirm(), StepTime)
	}
	p := h.page(c, StepConfirm, d)
	p.Doctor = h.doctorOrPlaceholder(c.Request().Context(), d.DoctorID)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Confirm(c echo.Context) error {
	sess := session.FromContext(c)
	d := LoadDraft(sess)
	if err := d.Confirm(); err != nil {
		return h.fail(c, err, StepTime)
	}
	if err := SaveDraft(sess, d); err != nil {
		return err
	}
	return session.Redirect(c, string(StepPay))
}

// -- Step 5: pay --

func (h *Handler) PayStep(c echo.Context) error {
	d := LoadDraft(session.FromContext(c))
	if err := d.ReadyToPay(); err != nil {
		return h.fail(c, err, StepTime)
	}
	p := h.page(c, StepPay, d)
	p.Methods = []string{MethodQR, MethodCash}
	return c.JSON(http.StatusOK, p)
}

type payForm struct {
	Method string `json:"metodo" form:"metodo"`
}

func (h *Handler) Pay(c echo.Context) error {
	var f payForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	principal, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}
	sess := session.FromContext(c)
	d := LoadDraft(sess)

	booker := Booker{Username: principal.Username, Name: principal.Name, Email: principal.Email}
	if _, err := h.svc.Finalize(c.Request().Context(), booker, d, f.Method); err != nil {
		return h.fail(c, err, StepPay)
	}
	ClearDraft(sess)
	return session.Redirect(c, "/appointments/pending",
		session.Success("Cita registrada correctamente. Revisa tus citas pendientes."))
}

// -- Attended --

func (h *Handler) MarkAttended(c echo.Context) error {
	back := backTo(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return session.Redirect(c, back, session.Error("No se pudo actualizar"))
	}
	if _, err := h.svc.MarkAttended(c.Request().Context(), id); err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			h.svc.logger.Error().Err(err).Int64("appointment_id", id).Msg("mark attended failed")
		}
		return session.Redirect(c, back, session.Error("No se pudo actualizar"))
	}
	return session.Redirect(c, back, session.Success("Cita marcada como atendida"))
}

// backTo returns the same-host page the request came from, else the user's
// dashboard.
func backTo(c echo.Context) string {
	req := c.Request()
	ref, err := url.Parse(req.Referer())
	if err == nil && (ref.Host == "" || ref.Host == req.Host) &&
		strings.HasPrefix(ref.Path, "/") && !strings.HasPrefix(ref.Path, "//") {
		return ref.RequestURI()
	}
	if p, ok := auth.PrincipalFromContext(req.Context()); ok {
		if role, err := identity.ParseRole(p.Role); err == nil {
			return role.DashboardPath()
		}
	}
	return "/"
}

// fail turns a booking error into a redirect. Wizard order violations come
// back as warnings; everything else is an error on the fallback step.
func (h *Handler) fail(c echo.Context, err error, fallback Step) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return session.Redirect(c, string(ve.Redirect), session.Warning(ve.Message))
	case errors.Is(err, identity.ErrDoctorNotFound):
		return session.Redirect(c, string(StepDoctor), session.Error("Médico no encontrado"))
	case errors.Is(err, tabular.ErrBufferFull):
		h.svc.logger.Error().Err(err).Msg("booking rejected, write buffer full")
		return session.Redirect(c, string(fallback), session.Error("No se pudo registrar la cita, intenta más tarde"))
	case tabular.IsPersistenceError(err):
		h.svc.logger.Error().Err(err).Str("step", string(fallback)).Msg("booking store unavailable")
		return session.Redirect(c, string(fallback), session.Error("No se pudo guardar, intenta más tarde"))
	default:
		h.svc.logger.Error().Err(err).Str("step", string(fallback)).Msg("booking step failed")
		return session.Redirect(c, string(fallback), session.Error("Ocurrió un error, intenta de nuevo"))
	}
}
