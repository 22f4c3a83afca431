// Package billing serves the documents a patient takes away from a booking:
// the receipt PDF and the payment QR image.
package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/blobstore"
	"github.com/limamedic/clinic/internal/platform/receipt"
)

var (
	ErrReceiptUnavailable = errors.New("receipt could not be generated")
	ErrNotOwner           = errors.New("appointment belongs to another patient")
	ErrQRNotFound         = errors.New("qr image not found")
)

type AppointmentSource interface {
	Get(ctx context.Context, id int64) (*scheduling.Appointment, error)
}

type PatientSource interface {
	GetUser(ctx context.Context, username string) (*identity.User, error)
}

type Service struct {
	appointments AppointmentSource
	patients     PatientSource
	renderer     receipt.Renderer
	blobs        blobstore.BlobStore
	logger       zerolog.Logger
}

func NewService(appts AppointmentSource, patients PatientSource, renderer receipt.Renderer, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		patients:     patients,
		renderer:     renderer,
		blobs:        blobs,
		logger:       logger.With().Str("component", "billing").Logger(),
	}
}

// Receipt returns the PDF receipt of an appointment, rendering and caching it
// on first request. The cache is keyed by status, so marking the
// appointment attended produces a fresh receipt. A non-empty owner restricts access to that patient's
// appointments.
func (s *Service) Receipt(ctx context.Context, id int64, owner string) ([]byte, error) {
	a, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && a.Username != owner {
		return nil, ErrNotOwner
	}

	key := blobstore.ReceiptKey(id, string(a.Status))
	cached, _, err := s.blobs.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("cached receipt unreadable, rendering again")
	}

	pdf, err := s.renderer.Render(s.document(ctx, a))
	if err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", id).Msg("receipt render failed")
		return nil, fmt.Errorf("%w: %v", ErrReceiptUnavailable, err)
	}
	if _, err := s.blobs.Put(ctx, key, "application/pdf", bytes.NewReader(pdf)); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("receipt not cached")
	}
	return pdf, nil
}

// document fills a receipt from the appointment and, when the patient row
// is found, the patient's contact details.
func (s *Service) document(ctx context.Context, a *scheduling.Appointment) receipt.Document {
	doc := receipt.Document{
		Patient: receipt.Patient{Name: a.PatientName},
		Appointment: receipt.Appointment{
			ID:        a.ID,
			Specialty: a.Specialty,
			Doctor:    a.DoctorName,
			Date:      a.Date,
			Time:      a.Time,
			Status:    string(a.Status),
		},
		Payment: receipt.Payment{Method: a.PaymentMethod, Reference: a.Reference},
	}
	if u, err := s.patients.GetUser(ctx, a.Username); err == nil {
		if u.Name != "" {
			doc.Patient.Name = u.Name
		}
		doc.Patient.DocumentID = u.DocumentID
		doc.Patient.Email = u.Email
		doc.Patient.Phone = u.Phone
	}
	if a.PaymentMethod == scheduling.MethodQR && a.Reference != "" {
		if png, _, err := s.blobs.Get(ctx, blobstore.QRKey(a.Reference)); err == nil {
			doc.QRImage = png
		}
	}
	return doc
}

// QRImage returns the stored payment QR for a reference.
func (s *Service) QRImage(ctx context.Context, reference string) ([]byte, error) {
	png, _, err := s.blobs.Get(ctx, blobstore.QRKey(reference))
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) || errors.Is(err, blobstore.ErrInvalidKey) {
			return nil, ErrQRNotFound
		}
		return nil, err
	}
	return png, nil
}
