package scheduling

import (
	"strconv"
	"strings"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/platform/tabular"
)

// Status is an appointment's lifecycle state: created Pending or Paid,
// later Attended.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusPaid     Status = "Paid"
	StatusAttended Status = "Attended"
)

var legacyStatuses = map[string]Status{
	"pending":   StatusPending,
	"pendiente": StatusPending,
	"paid":      StatusPaid,
	"pagado":    StatusPaid,
	"attended":  StatusAttended,
	"atendido":  StatusAttended,
}

// ParseStatus maps stored values, including the Spanish ones, onto Status.
// Unknown values are kept as-is.
func ParseStatus(s string) Status {
	if st, ok := legacyStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return Status(s)
}

// Payment methods. Anything other than QR is settled in cash at the desk.
const (
	MethodQR   = "QR"
	MethodCash = "EFECTIVO"
)

func NormalizeMethod(m string) string {
	if strings.EqualFold(strings.TrimSpace(m), MethodQR) {
		return MethodQR
	}
	return MethodCash
}

// Appointment is a row of the appointments table.
type Appointment struct {
	ID            int64  `json:"id"`
	Username      string `json:"usuario"`
	PatientName   string `json:"nombre_paciente"`
	Specialty     string `json:"especialidad"`
	DoctorID      int64  `json:"medico_id"`
	DoctorName    string `json:"medico_nombre"`
	Date          string `json:"fecha"`
	Time          string `json:"hora"`
	Status        Status `json:"estado"`
	PaymentMethod string `json:"metodo_pago"`
	Reference     string `json:"referencia"`
}

// occupies reports whether a holds the doctor's slot on date at hhmm.
func (a *Appointment) occupies(doctorID int64, date, hhmm string) bool {
	return a.DoctorID == doctorID && a.Date == date && a.Time == hhmm
}

func appointmentFromRow(row tabular.Row) (*Appointment, bool) {
	id, ok := identity.ParseID(row["id"])
	if !ok {
		return nil, false
	}
	doctorID, _ := identity.ParseID(row["medico_id"])
	return &Appointment{
		ID:            id,
		Username:      row["usuario"],
		PatientName:   row["nombre_paciente"],
		Specialty:     row["especialidad"],
		DoctorID:      doctorID,
		DoctorName:    row["medico_nombre"],
		Date:          row["fecha"],
		Time:          row["hora"],
		Status:        ParseStatus(row["estado"]),
		PaymentMethod: row["metodo_pago"],
		Reference:     row["referencia"],
	}, true
}

func appointmentToRow(a *Appointment) tabular.Row {
	return tabular.Row{
		"id":              strconv.FormatInt(a.ID, 10),
		"usuario":         a.Username,
		"nombre_paciente": a.PatientName,
		"especialidad":    a.Specialty,
		"medico_id":       strconv.FormatInt(a.DoctorID, 10),
		"medico_nombre":   a.DoctorName,
		"fecha":           a.Date,
		"hora":            a.Time,
		"estado":          string(a.Status),
		"metodo_pago":     a.PaymentMethod,
		"referencia":      a.Reference,
	}
}
