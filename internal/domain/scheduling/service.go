package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/platform/blobstore"
	"github.com/limamedic/clinic/internal/platform/notification"
	"github.com/limamedic/clinic/internal/platform/qrcode"
	"github.com/limamedic/clinic/internal/platform/websocket"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrSlotNotOffered      = errors.New("time is not one of the doctor's slots")
)

// DoctorLookup resolves the doctor chosen in a draft.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id int64) (*identity.Doctor, error)
}

// UserLookup resolves the patient an appointment belongs to.
type UserLookup interface {
	GetUser(ctx context.Context, username string) (*identity.User, error)
}

// Booker is the logged-in patient finalizing a draft.
type Booker struct {
	Username string
	Name     string
	Email    string
}

type Config struct {
	Brand                string
	SlotMinutes          int
	PreventDoubleBooking bool
}

type Service struct {
	appointments AppointmentRepository
	doctors      DoctorLookup
	users        UserLookup
	cfg          Config
	logger       zerolog.Logger

	ids      *IDGenerator
	qr       qrcode.Encoder
	blobs    blobstore.BlobStore
	events   websocket.EventPublisher
	notifier notification.Notifier

	// serializes the slot check and the append in Finalize
	bookMu sync.Mutex
}

type ServiceOption func(*Service)

// WithQRAssets encodes QR payment codes and stores the images.
func WithQRAssets(enc qrcode.Encoder, blobs blobstore.BlobStore) ServiceOption {
	return func(s *Service) {
		s.qr = enc
		s.blobs = blobs
	}
}

func WithPublisher(p websocket.EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// WithNotifier e-mails patients; users resolves their addresses when the
// session does not carry one.
func WithNotifier(n notification.Notifier, users UserLookup) ServiceOption {
	return func(s *Service) {
		s.notifier = n
		s.users = users
	}
}

func WithIDGenerator(g *IDGenerator) ServiceOption {
	return func(s *Service) { s.ids = g }
}

func NewService(appts AppointmentRepository, doctors DoctorLookup, cfg Config, logger zerolog.Logger, opts ...ServiceOption) *Service {
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = DefaultSlotMinutes
	}
	if cfg.Brand == "" {
		cfg.Brand = "LimaMedic"
	}
	s := &Service{
		appointments: appts,
		doctors:      doctors,
		cfg:          cfg,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		ids:          NewIDGenerator(),
		qr:           qrcode.Unavailable{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedIDs makes new ids greater than every id already stored.
func (s *Service) SeedIDs(ctx context.Context) error {
	all, err := s.appointments.List(ctx)
	if err != nil {
		return fmt.Errorf("seed appointment ids: %w", err)
	}
	for _, a := range all {
		s.ids.Observe(a.ID)
	}
	return nil
}

// -- Slots --

// OpenSlots lists the doctor's slots for date, without the ones already
// booked when double booking is prevented. A failed read leaves every slot
// open.
func (s *Service) OpenSlots(ctx context.Context, d *identity.Doctor, date string) []string {
	slots := AvailableSlots(d, s.cfg.SlotMinutes)
	if !s.cfg.PreventDoubleBooking || d == nil {
		return slots
	}
	all, err := s.appointments.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", d.ID).Msg("could not read appointments, showing all slots")
		return slots
	}
	taken := make(map[string]struct{})
	for _, a := range all {
		if a.DoctorID == d.ID && a.Date == date {
			taken[a.Time] = struct{}{}
		}
	}
	open := make([]string, 0, len(slots))
	for _, slot := range slots {
		if _, ok := taken[slot]; !ok {
			open = append(open, slot)
		}
	}
	return open
}

// CheckSlot returns a ValidationError wrapping ErrSlotNotOffered when the
// draft's time is not one of the doctor's slots, or ErrSlotTaken when the
// slot already has an appointment.
func (s *Service) CheckSlot(ctx context.Context, d *Draft) error {
	if !s.offers(ctx, d.DoctorID, d.Time) {
		return &ValidationError{
			Redirect: StepTime,
			Message:  "Elige uno de los horarios disponibles",
			Err:      ErrSlotNotOffered,
		}
	}
	if !s.cfg.PreventDoubleBooking {
		return nil
	}
	all, err := s.appointments.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read appointments for slot check")
		return nil
	}
	for _, a := range all {
		if a.occupies(d.DoctorID, d.Date, d.Time) {
			return &ValidationError{
				Redirect: StepTime,
				Message:  "Ese horario ya fue reservado, elige otro",
				Err:      ErrSlotTaken,
			}
		}
	}
	return nil
}

// offers reports whether hhmm is on the doctor's slot grid. An unknown doctor
// is checked against the default working day, as the time step shows it.
func (s *Service) offers(ctx context.Context, doctorID int64, hhmm string) bool {
	doc, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doctorID).Msg("doctor lookup failed, checking default hours")
		doc = nil
	}
	for _, slot := range AvailableSlots(doc, s.cfg.SlotMinutes) {
		if slot == hhmm {
			return true
		}
	}
	return false
}

// -- Finalization --

// Finalize turns a complete draft into a stored appointment. QR payments
// are Paid with a hex reference; anything else is Pending with a 6-digit
// code. The caller removes the draft from the session.
func (s *Service) Finalize(ctx context.Context, b Booker, d *Draft, method string) (*Appointment, error) {
	if err := d.ReadyToPay(); err != nil {
		return nil, err
	}
	method = NormalizeMethod(method)

	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	if err := s.CheckSlot(ctx, d); err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:            s.ids.Next(),
		Username:      b.Username,
		PatientName:   b.Name,
		Specialty:     d.Specialty,
		DoctorID:      d.DoctorID,
		Date:          d.Date,
		Time:          d.Time,
		PaymentMethod: method,
	}
	if doc, err := s.doctors.GetDoctor(ctx, d.DoctorID); err == nil {
		a.DoctorName = doc.Name
	} else {
		s.logger.Warn().Err(err).Int64("doctor_id", d.DoctorID).Msg("doctor lookup failed, leaving name empty")
	}

	var err error
	if method == MethodQR {
		a.Status = StatusPaid
		a.Reference, err = qrReference()
	} else {
		a.Status = StatusPending
		a.Reference, err = cashReference()
	}
	if err != nil {
		return nil, err
	}
	if method == MethodQR {
		s.storeQR(ctx, a)
	}

	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	s.logger.Info().Int64("appointment_id", a.ID).Str("user", a.Username).Str("status", string(a.Status)).Msg("appointment booked")

	s.publish(ctx, websocket.EventCreated, a)
	s.notify(ctx, notification.TemplateAppointmentBooked, a, b.Email)
	return a, nil
}

// QRPayload is the text encoded in an appointment's payment QR.
func (s *Service) QRPayload(a *Appointment) string {
	return qrcode.PaymentPayload(s.cfg.Brand, a.Reference, a.ID)
}

func (s *Service) storeQR(ctx context.Context, a *Appointment) {
	png, err := s.qr.Encode(s.QRPayload(a))
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", a.Reference).Msg("qr image not generated")
		return
	}
	if s.blobs == nil {
		return
	}
	if _, err := s.blobs.Put(ctx, blobstore.QRKey(a.Reference), "image/png", bytes.NewReader(png)); err != nil {
		s.logger.Warn().Err(err).Str("reference", a.Reference).Msg("qr image not stored")
	}
}

// -- Attended --

// MarkAttended sets the appointment to Attended. Marking it again is a no-op.
func (s *Service) MarkAttended(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusAttended {
		return a, nil
	}
	if err := s.appointments.UpdateStatus(ctx, id, StatusAttended); err != nil {
		return nil, err
	}
	a.Status = StatusAttended
	s.logger.Info().Int64("appointment_id", id).Msg("appointment attended")

	s.publish(ctx, websocket.EventAttended, a)
	s.notify(ctx, notification.TemplateAppointmentAttended, a, "")
	return a, nil
}

// -- Listings --

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAll(ctx context.Context) ([]*Appointment, error) {
	return s.appointments.List(ctx)
}

func (s *Service) ListByUser(ctx context.Context, username string) ([]*Appointment, error) {
	return s.filter(ctx, func(a *Appointment) bool { return a.Username == username })
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID int64) ([]*Appointment, error) {
	return s.filter(ctx, func(a *Appointment) bool { return a.DoctorID == doctorID })
}

func (s *Service) filter(ctx context.Context, keep func(*Appointment) bool) ([]*Appointment, error) {
	all, err := s.appointments.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []*Appointment{}
	for _, a := range all {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// -- Side effects --

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	topics := []string{
		websocket.TopicAppointments,
		websocket.DoctorTopic(strconv.FormatInt(a.DoctorID, 10)),
		websocket.PatientTopic(a.Username),
	}
	for _, topic := range topics {
		ev := websocket.Event{Type: eventType, Topic: topic, AppointmentID: a.ID, Data: data}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("publish failed")
		}
	}
}

func (s *Service) notify(ctx context.Context, templateID string, a *Appointment, email string) {
	if s.notifier == nil {
		return
	}
	if email == "" && s.users != nil {
		if u, err := s.users.GetUser(ctx, a.Username); err == nil {
			email = u.Email
		}
	}
	if email == "" {
		return
	}
	data := map[string]string{
		"brand":        s.cfg.Brand,
		"patient_name": a.PatientName,
		"specialty":    a.Specialty,
		"doctor":       a.DoctorName,
		"date":         a.Date,
		"time":         a.Time,
		"status":       string(a.Status),
		"method":       a.PaymentMethod,
		"reference":    a.Reference,
		"id":           strconv.FormatInt(a.ID, 10),
	}
	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, email); err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", a.ID).Str("template", templateID).Msg("notification not sent")
	}
}
