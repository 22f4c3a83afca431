package integration

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/tabular"
)

// TestBookingFlow registers a patient, adds a doctor, books a cash and a QR
// appointment and marks one attended, all against the SQL backend.
func TestBookingFlow(t *testing.T) {
	for name, store := range sqlStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			resetClinicTables(t, ctx, store)
			defer resetClinicTables(t, ctx, store)

			ident := identity.NewService(identity.NewUserRepo(store), identity.NewDoctorRepo(store))
			if _, err := ident.Register(ctx, identity.RegisterInput{
				Username: "ana", Name: "Ana Torres", Password: "secreto123", Email: "ana@example.com",
			}); err != nil {
				t.Fatalf("register: %v", err)
			}
			if _, err := ident.Authenticate(ctx, "ana@example.com", "secreto123", ""); err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			doc := &identity.Doctor{Name: "Dr. Ruiz", Specialty: "Cardiology", StartTime: "09:00", EndTime: "12:00"}
			if err := ident.AddDoctor(ctx, doc); err != nil {
				t.Fatalf("add doctor: %v", err)
			}

			sched := scheduling.NewService(
				scheduling.NewAppointmentRepo(tabular.NewBuffered(store, 8, zerolog.Nop())),
				ident,
				scheduling.Config{PreventDoubleBooking: true},
				zerolog.Nop(),
			)
			booker := scheduling.Booker{Username: "ana", Name: "Ana Torres"}

			draft := &scheduling.Draft{}
			mustStep(t, draft.ChooseSpecialty("Cardiology", "2030-05-01"))
			mustStep(t, draft.ChooseDoctor(doc.ID))
			mustStep(t, draft.ChooseTime("09:30"))
			mustStep(t, draft.Confirm())

			cash, err := sched.Finalize(ctx, booker, draft, "EFECTIVO")
			if err != nil {
				t.Fatalf("finalize cash: %v", err)
			}
			if cash.Status != scheduling.StatusPending || len(cash.Reference) != 6 {
				t.Errorf("unexpected cash appointment %+v", cash)
			}

			if _, err := sched.Finalize(ctx, booker, draft, "QR"); err == nil {
				t.Error("expected the 09:30 slot to be taken")
			}

			mustStep(t, draft.ChooseTime("10:00"))
			mustStep(t, draft.Confirm())
			qr, err := sched.Finalize(ctx, booker, draft, "QR")
			if err != nil {
				t.Fatalf("finalize qr: %v", err)
			}
			if qr.Status != scheduling.StatusPaid {
				t.Errorf("expected paid QR appointment, got %s", qr.Status)
			}

			if _, err := sched.MarkAttended(ctx, cash.ID); err != nil {
				t.Fatalf("mark attended: %v", err)
			}
			got, err := sched.Get(ctx, cash.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != scheduling.StatusAttended {
				t.Errorf("expected attended, got %s", got.Status)
			}

			open := sched.OpenSlots(ctx, doc, "2030-05-01")
			for _, s := range open {
				if s == "09:30" || s == "10:00" {
					t.Errorf("booked slot %s still offered: %v", s, open)
				}
			}
		})
	}
}

func mustStep(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("draft step: %v", err)
	}
}
