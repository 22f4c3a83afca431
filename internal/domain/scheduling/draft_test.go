package scheduling

import (
	"errors"
	"testing"

	"github.com/limamedic/clinic/internal/platform/session"
)

func expectRedirect(t *testing.T, err error, want Step) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Redirect != want {
		t.Errorf("expected redirect to %s, got %s", want, ve.Redirect)
	}
	if ve.Message == "" {
		t.Error("expected a user-visible message")
	}
}

func completeDraft(t *testing.T) *Draft {
	t.Helper()
	d := &Draft{}
	if err := d.ChooseSpecialty("Cardiology", "2024-05-01"); err != nil {
		t.Fatalf("specialty: %v", err)
	}
	if err := d.ChooseDoctor(3); err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if err := d.ChooseTime("09:30"); err != nil {
		t.Fatalf("time: %v", err)
	}
	if err := d.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return d
}

func TestDraft_HappyPath(t *testing.T) {
	d := completeDraft(t)
	if err := d.ReadyToPay(); err != nil {
		t.Fatalf("expected ready to pay, got %v", err)
	}
	if d.Next() != StepPay {
		t.Errorf("expected next step pay, got %s", d.Next())
	}
}

func TestDraft_SkippingSteps(t *testing.T) {
	expectRedirect(t, (&Draft{}).ChooseDoctor(3), StepSpecialty)
	expectRedirect(t, (&Draft{Specialty: "X", Date: "2024-05-01"}).ChooseTime("09:30"), StepDoctor)
	expectRedirect(t, (&Draft{Specialty: "X", DoctorID: 3}).Confirm(), StepTime)
	expectRedirect(t, (&Draft{Specialty: "X", DoctorID: 3}).ReadyToPay(), StepTime)
	expectRedirect(t, (&Draft{Specialty: "X", DoctorID: 3, Time: "09:30"}).ReadyToPay(), StepConfirm)
	expectRedirect(t, (&Draft{}).ReadyToPay(), StepSpecialty)
}

func TestDraft_InvalidInput(t *testing.T) {
	d := &Draft{}
	expectRedirect(t, d.ChooseSpecialty("", "2024-05-01"), StepSpecialty)
	expectRedirect(t, d.ChooseSpecialty("Cardiology", "01/05/2024"), StepSpecialty)
	if err := d.ChooseSpecialty("Cardiology", "2024-05-01"); err != nil {
		t.Fatal(err)
	}
	expectRedirect(t, d.ChooseDoctor(0), StepDoctor)
	if err := d.ChooseDoctor(3); err != nil {
		t.Fatal(err)
	}
	expectRedirect(t, d.ChooseTime(""), StepTime)
	expectRedirect(t, d.ChooseTime("25:99"), StepTime)
}

func TestDraft_RechoosingClearsLaterSteps(t *testing.T) {
	d := completeDraft(t)
	if err := d.ChooseTime("10:00"); err != nil {
		t.Fatal(err)
	}
	if d.Confirmed {
		t.Error("choosing a new time must drop the confirmation")
	}

	d = completeDraft(t)
	if err := d.ChooseDoctor(4); err != nil {
		t.Fatal(err)
	}
	if d.Time != "" || d.Confirmed {
		t.Errorf("choosing a new doctor must drop time and confirmation, got %+v", d)
	}

	d = completeDraft(t)
	if err := d.ChooseSpecialty("Pediatrics", "2024-06-01"); err != nil {
		t.Fatal(err)
	}
	if *d != (Draft{Specialty: "Pediatrics", Date: "2024-06-01"}) {
		t.Errorf("restart must reset the draft, got %+v", d)
	}
}

func TestDraft_SessionRoundTrip(t *testing.T) {
	sess := session.New("s1")
	if HasDraft(sess) {
		t.Fatal("new session has no draft")
	}
	if got := LoadDraft(sess); *got != (Draft{}) {
		t.Errorf("expected empty draft, got %+v", got)
	}

	d := completeDraft(t)
	if err := SaveDraft(sess, d); err != nil {
		t.Fatal(err)
	}
	if got := LoadDraft(sess); *got != *d {
		t.Errorf("expected %+v, got %+v", d, got)
	}

	ClearDraft(sess)
	if HasDraft(sess) {
		t.Error("expected draft removed")
	}
}

func TestDraft_CorruptSessionValue(t *testing.T) {
	sess := session.New("s1")
	_ = sess.Set(draftSessionKey, "not a draft")
	if got := LoadDraft(sess); *got != (Draft{}) {
		t.Errorf("expected empty draft for corrupt value, got %+v", got)
	}
}
