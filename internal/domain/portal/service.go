package portal

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
)

// AppointmentLister is the read side of scheduling.Service.
type AppointmentLister interface {
	ListAll(ctx context.Context) ([]*scheduling.Appointment, error)
	ListByUser(ctx context.Context, username string) ([]*scheduling.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]*scheduling.Appointment, error)
}

// DoctorDirectory is the read side of identity.Service.
type DoctorDirectory interface {
	ListDoctors(ctx context.Context) ([]*identity.Doctor, error)
	DoctorByUsername(ctx context.Context, username string) (*identity.Doctor, error)
}

// Service builds dashboard data. Store failures never fail a dashboard: the
// affected list comes back empty and the failure is logged.
type Service struct {
	appointments AppointmentLister
	doctors      DoctorDirectory
	logger       zerolog.Logger
}

func NewService(appts AppointmentLister, doctors DoctorDirectory, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		doctors:      doctors,
		logger:       logger.With().Str("component", "portal").Logger(),
	}
}

// PatientAppointments returns the patient's appointments, soonest first.
func (s *Service) PatientAppointments(ctx context.Context, username string) []*scheduling.Appointment {
	appts, err := s.appointments.ListByUser(ctx, username)
	if err != nil {
		s.logger.Warn().Err(err).Str("user", username).Msg("patient appointments unavailable")
		return []*scheduling.Appointment{}
	}
	sortBySchedule(appts, false)
	return appts
}

// History returns the patient's appointments, most recent first.
func (s *Service) History(ctx context.Context, username string) []*scheduling.Appointment {
	appts := s.PatientAppointments(ctx, username)
	sortBySchedule(appts, true)
	return appts
}

// DoctorAppointments resolves the doctor row linked to username and returns
// its appointments. A login with no doctor row gets a nil doctor and no
// appointments.
func (s *Service) DoctorAppointments(ctx context.Context, username string) (*identity.Doctor, []*scheduling.Appointment) {
	doc, err := s.doctors.DoctorByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, identity.ErrDoctorNotFound) {
			s.logger.Warn().Err(err).Str("user", username).Msg("doctor lookup failed")
		}
		return nil, []*scheduling.Appointment{}
	}
	appts, err := s.appointments.ListByDoctor(ctx, doc.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doc.ID).Msg("doctor appointments unavailable")
		return doc, []*scheduling.Appointment{}
	}
	sortBySchedule(appts, false)
	return doc, appts
}

// Reception returns every appointment and every doctor.
func (s *Service) Reception(ctx context.Context) ([]*scheduling.Appointment, []*identity.Doctor) {
	appts, err := s.appointments.ListAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("appointments unavailable")
		appts = []*scheduling.Appointment{}
	}
	doctors, err := s.doctors.ListDoctors(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("doctors unavailable")
		doctors = []*identity.Doctor{}
	}
	sortBySchedule(appts, false)
	return appts, doctors
}

func (s *Service) Pharmacy(context.Context) ([]InventoryItem, []Supplier) {
	return []InventoryItem{}, []Supplier{}
}

// sortBySchedule orders by date then time. Dates and times are zero-padded
// so string order is chronological. Ties keep store order.
func sortBySchedule(appts []*scheduling.Appointment, descending bool) {
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.Date != b.Date {
			return (a.Date < b.Date) != descending
		}
		if a.Time != b.Time {
			return (a.Time < b.Time) != descending
		}
		return false
	})
}
