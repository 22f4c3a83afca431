package scheduling

import (
	"strings"
	"time"

	"github.com/limamedic/clinic/internal/platform/session"
)

// Step is a page of the booking wizard, named by its path.
type Step string

const (
	StepSpecialty Step = "/booking"
	StepDoctor    Step = "/booking/doctor"
	StepTime      Step = "/booking/time"
	StepConfirm   Step = "/booking/confirm"
	StepPay       Step = "/booking/pay"
)

const draftSessionKey = "booking_draft"

// ValidationError sends the visitor back to an earlier wizard step with a
// warning. It never ends the booking.
type ValidationError struct {
	Redirect Step
	Message  string
	Err      error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

func redirectTo(step Step, msg string) *ValidationError {
	return &ValidationError{Redirect: step, Message: msg}
}

// Draft is the appointment being assembled across the wizard steps. Each
// step requires the previous one; choosing again clears what follows.
type Draft struct {
	Specialty string `json:"especialidad"`
	Date      string `json:"fecha"`
	DoctorID  int64  `json:"medico_id,omitempty"`
	Time      string `json:"hora,omitempty"`
	Confirmed bool   `json:"confirmado,omitempty"`
}

// ChooseSpecialty starts the wizard over.
func (d *Draft) ChooseSpecialty(specialty, date string) error {
	specialty = strings.TrimSpace(specialty)
	date = strings.TrimSpace(date)
	if specialty == "" {
		return redirectTo(StepSpecialty, "Selecciona una especialidad")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return redirectTo(StepSpecialty, "Selecciona una fecha válida")
	}
	*d = Draft{Specialty: specialty, Date: date}
	return nil
}

func (d *Draft) ChooseDoctor(id int64) error {
	if d.Specialty == "" {
		return redirectTo(StepSpecialty, "Selecciona especialidad primero")
	}
	if id <= 0 {
		return redirectTo(StepDoctor, "Selecciona un médico")
	}
	d.DoctorID = id
	d.Time = ""
	d.Confirmed = false
	return nil
}

func (d *Draft) ChooseTime(hhmm string) error {
	if d.DoctorID == 0 {
		return redirectTo(StepDoctor, "Selecciona un médico antes de elegir hora")
	}
	hhmm = strings.TrimSpace(hhmm)
	if hhmm == "" || !validClock(hhmm) {
		return redirectTo(StepTime, "Selecciona una hora")
	}
	d.Time = hhmm
	d.Confirmed = false
	return nil
}

func (d *Draft) Confirm() error {
	if d.Time == "" {
		return redirectTo(StepTime, "Selecciona hora antes de confirmar")
	}
	d.Confirmed = true
	return nil
}

// ReadyToPay checks every earlier step in order.
func (d *Draft) ReadyToPay() error {
	switch {
	case d.Specialty == "":
		return redirectTo(StepSpecialty, "Selecciona especialidad primero")
	case d.DoctorID == 0:
		return redirectTo(StepDoctor, "Selecciona un médico antes de elegir hora")
	case d.Time == "":
		return redirectTo(StepTime, "Selecciona hora antes de pagar")
	case !d.Confirmed:
		return redirectTo(StepConfirm, "Confirma la cita antes de pagar")
	}
	return nil
}

// Next is the first step whose field is still missing.
func (d *Draft) Next() Step {
	switch {
	case d.Specialty == "":
		return StepSpecialty
	case d.DoctorID == 0:
		return StepDoctor
	case d.Time == "":
		return StepTime
	case !d.Confirmed:
		return StepConfirm
	}
	return StepPay
}

// LoadDraft returns the session's draft, or an empty one when there is none
// or the stored value cannot be decoded.
func LoadDraft(s *session.Session) *Draft {
	d := &Draft{}
	if found, err := s.Get(draftSessionKey, d); !found || err != nil {
		return &Draft{}
	}
	return d
}

func SaveDraft(s *session.Session, d *Draft) error {
	return s.Set(draftSessionKey, d)
}

func ClearDraft(s *session.Session) {
	s.Delete(draftSessionKey)
}

// HasDraft reports whether the session holds a draft.
func HasDraft(s *session.Session) bool {
	return s.Has(draftSessionKey)
}
