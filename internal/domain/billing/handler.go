package billing

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/receipts/:id/download", h.DownloadReceipt, auth.RequireLogin())
	g.GET("/qr/:reference", h.GetQR, auth.RequireLogin())
}

var hexReference = regexp.MustCompile(`^[0-9a-f]{1,64}$`)

// DownloadReceipt sends boleta_<id>.pdf as an attachment. Patients only see
// their own receipts. Failures send the visitor back to the patient
// dashboard with a message.
func (h *Handler) DownloadReceipt(c echo.Context) error {
	const back = "/dashboard/patient"
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return session.Redirect(c, back, session.Error("Cita no encontrada."))
	}

	owner := ""
	if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok && p.Role == string(identity.RolePatient) {
		owner = p.Username
	}

	pdf, err := h.svc.Receipt(c.Request().Context(), id, owner)
	switch {
	case err == nil:
	case errors.Is(err, scheduling.ErrAppointmentNotFound), errors.Is(err, ErrNotOwner):
		return session.Redirect(c, back, session.Error("Cita no encontrada."))
	case errors.Is(err, ErrReceiptUnavailable):
		return session.Redirect(c, back, session.Error("No se pudo generar la boleta."))
	default:
		h.svc.logger.Error().Err(err).Int64("appointment_id", id).Msg("receipt download failed")
		return session.Redirect(c, back, session.Error("No se pudo generar la boleta."))
	}

	name := fmt.Sprintf("boleta_%d.pdf", id)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) GetQR(c echo.Context) error {
	ref := c.Param("reference")
	if !hexReference.MatchString(ref) {
		return echo.NewHTTPError(http.StatusNotFound, "qr not found")
	}
	png, err := h.svc.QRImage(c.Request().Context(), ref)
	if err != nil {
		if errors.Is(err, ErrQRNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "qr not found")
		}
		h.svc.logger.Error().Err(err).Str("reference", ref).Msg("qr image unreadable")
		return echo.NewHTTPError(http.StatusInternalServerError, "qr image unavailable")
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
