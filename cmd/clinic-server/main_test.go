package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/config"
	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/session"
	"github.com/limamedic/clinic/internal/platform/tabular"
	"github.com/limamedic/clinic/internal/platform/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                "8000",
		Env:                 "test",
		StoreBackend:        config.BackendMemory,
		SessionBackend:      config.SessionMemory,
		SessionSecret:       "test-secret",
		SessionTTL:          time.Hour,
		ClinicBrand:         "LimaMedic",
		ClinicAddress:       "Av. Ejemplo 123, Lima",
		SlotMinutes:         30,
		WriteBufferCapacity: 16,
		PreventDoubleBook:   true,
		CORSOrigins:         []string{"http://localhost:3000"},
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seedDoctors(ctx, newIdentityService(b.store), defaultDoctors); err != nil {
		t.Fatal(err)
	}
	a, err := newApp(ctx, cfg, zerolog.Nop(), b, session.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// browser keeps the session cookie between requests.
type browser struct {
	t      *testing.T
	e      *echo.Echo
	cookie *http.Cookie
}

func (br *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	br.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	if br.cookie != nil {
		req.AddCookie(br.cookie)
	}
	rec := httptest.NewRecorder()
	br.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			br.cookie = ck
		}
	}
	return rec
}

func (br *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	return br.do(http.MethodPost, target, form)
}

func (br *browser) expectRedirect(rec *httptest.ResponseRecorder, location string) {
	br.t.Helper()
	if rec.Code != http.StatusSeeOther {
		br.t.Fatalf("expected 303 to %s, got %d: %s", location, rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != location {
		br.t.Fatalf("expected redirect to %s, got %s (%s)", location, got, rec.Body.String())
	}
}

func (br *browser) signUp(username, role string) {
	br.t.Helper()
	br.expectRedirect(br.post("/register", url.Values{
		"username": {username},
		"nombre":   {strings.ToUpper(username[:1]) + username[1:]},
		"email":    {username + "@example.com"},
		"password": {"secreto123"},
		"rol":      {role},
	}), "/login")
	br.expectRedirect(br.post("/login", url.Values{
		"identifier": {username},
		"password":   {"secreto123"},
		"rol":        {role},
	}), "/dashboard/"+role)
}

func TestSeedDoctors_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := newIdentityService(tabular.NewMemoryStore())

	added, err := seedDoctors(ctx, svc, defaultDoctors)
	if err != nil {
		t.Fatal(err)
	}
	if added != len(defaultDoctors) {
		t.Errorf("expected %d doctors added, got %d", len(defaultDoctors), added)
	}
	added, err = seedDoctors(ctx, svc, defaultDoctors)
	if err != nil || added != 0 {
		t.Errorf("expected second seed to add nothing, got %d, %v", added, err)
	}
	specialties, _ := svc.Specialties(ctx)
	if len(specialties) != 4 {
		t.Errorf("expected 4 specialties, got %v", specialties)
	}
}

func TestCheckStore(t *testing.T) {
	ctx := context.Background()
	store := tabular.NewMemoryStore()
	if _, err := seedDoctors(ctx, newIdentityService(store), defaultDoctors); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if !checkStore(ctx, &out, "memory", store) {
		t.Fatalf("expected healthy store, output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "doctors") || !strings.Contains(out.String(), "5 row(s)") {
		t.Errorf("expected doctor row count in output:\n%s", out.String())
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "csv"
	if _, err := openBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenBackend_Bolt(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = config.BackendBolt
	cfg.DataDir = t.TempDir()
	b, err := openBackend(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.close()
	if err := b.migrate(context.Background()); err != nil {
		t.Errorf("bolt needs no migration, got %v", err)
	}
}

// schemaStore is a memory store that records schema runs.
type schemaStore struct {
	*tabular.MemoryStore
	runs int
}

func (s *schemaStore) Migrate(context.Context) error {
	s.runs++
	return nil
}

func TestBackend_MigratesSQLStores(t *testing.T) {
	var _ tabular.Migrator = (*tabular.PGStore)(nil)
	var _ tabular.Migrator = (*tabular.MySQLStore)(nil)

	s := &schemaStore{MemoryStore: tabular.NewMemoryStore()}
	b := &backend{name: "sql", store: s, close: func() {}}
	if err := b.migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.runs != 1 {
		t.Errorf("expected one schema run, got %d", s.runs)
	}
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.server().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["backend"] != "memory" || body["status"] != "healthy" || body["live_clients"] != float64(0) {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestBookingJourney(t *testing.T) {
	a := newTestApp(t)
	e := a.server()

	patient := &browser{t: t, e: e}
	patient.signUp("ana", "patient")

	patient.expectRedirect(patient.post("/booking", url.Values{"especialidad": {"Cardiología"}, "fecha": {"2030-05-01"}}), "/booking/doctor")
	patient.expectRedirect(patient.post("/booking/doctor", url.Values{"medico_id": {"1"}}), "/booking/time")

	rec := patient.do(http.MethodGet, "/booking/time", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"08:30"`) {
		t.Fatalf("expected open slots, got %d: %s", rec.Code, rec.Body.String())
	}

	patient.expectRedirect(patient.post("/booking/time", url.Values{"hora": {"08:30"}}), "/booking/confirm")
	patient.expectRedirect(patient.post("/booking/confirm", url.Values{}), "/booking/pay")
	patient.expectRedirect(patient.post("/booking/pay", url.Values{"metodo": {"EFECTIVO"}}), "/appointments/pending")

	rec = patient.do(http.MethodGet, "/appointments/pending", nil)
	var pending struct {
		Citas struct {
			Data []struct {
				ID         int64  `json:"id"`
				Status     string `json:"estado"`
				Reference  string `json:"referencia"`
				DoctorName string `json:"medico_nombre"`
			} `json:"data"`
		} `json:"citas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending.Citas.Data) != 1 {
		t.Fatalf("expected one appointment, got %s", rec.Body.String())
	}
	appt := pending.Citas.Data[0]
	if appt.Status != "Pending" || len(appt.Reference) != 6 || appt.DoctorName != "Dr. Carlos Ruiz" {
		t.Errorf("unexpected appointment %+v", appt)
	}
	id := strconv.FormatInt(appt.ID, 10)

	rec = patient.do(http.MethodGet, "/receipts/"+id+"/download", nil)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Fatalf("expected pdf receipt, got %d: %s", rec.Code, rec.Body.String())
	}

	// Paying removed the draft, so the wizard starts over.
	rec = patient.do(http.MethodGet, "/booking/time", nil)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected draft to be cleared after payment, got %d", rec.Code)
	}

	staff := &browser{t: t, e: e}
	staff.signUp("rosa", "receptionist")
	staff.expectRedirect(staff.post("/appointments/"+id+"/attend", url.Values{}), "/dashboard/receptionist")

	rec = staff.do(http.MethodGet, "/dashboard/receptionist", nil)
	if !strings.Contains(rec.Body.String(), `"estado":"Attended"`) {
		t.Errorf("expected attended appointment on dashboard: %s", rec.Body.String())
	}

	// Patients cannot mark appointments.
	rec = patient.post("/appointments/"+id+"/attend", url.Values{})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient, got %d", rec.Code)
	}
}

func TestFeedTopics(t *testing.T) {
	a := newTestApp(t)
	e := echo.New()

	topicsFor := func(p *auth.Principal) []string {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if p != nil {
			req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
		}
		return a.feedTopics(e.NewContext(req, httptest.NewRecorder()))
	}

	tests := []struct {
		name string
		user *auth.Principal
		want []string
	}{
		{"anonymous", nil, []string{}},
		{"receptionist", &auth.Principal{Username: "rosa", Role: string(identity.RoleReceptionist)}, []string{websocket.TopicAppointments}},
		{"linked doctor", &auth.Principal{Username: "druiz", Role: string(identity.RoleDoctor)}, []string{websocket.DoctorTopic("1")}},
		{"unlinked doctor", &auth.Principal{Username: "nuevo", Role: string(identity.RoleDoctor)}, []string{}},
		{"patient", &auth.Principal{Username: "ana", Role: string(identity.RolePatient)}, []string{websocket.PatientTopic("ana")}},
		{"pharmacy", &auth.Principal{Username: "pili", Role: string(identity.RolePharmacy)}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := topicsFor(tt.user)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLoginThrottle(t *testing.T) {
	a := newTestApp(t)
	br := &browser{t: t, e: a.server()}
	wrong := url.Values{"identifier": {"nadie"}, "password": {"x"}}

	for i := 0; i < 5; i++ {
		br.expectRedirect(br.post("/login", wrong), "/login")
	}
	rec := br.post("/login", wrong)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	// Browsing is still allowed.
	if rec := br.do(http.MethodGet, "/", nil); rec.Code != http.StatusOK {
		t.Errorf("expected home 200, got %d", rec.Code)
	}
}
