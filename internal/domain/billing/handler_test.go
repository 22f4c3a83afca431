package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/blobstore"
	"github.com/limamedic/clinic/internal/platform/receipt"
	"github.com/limamedic/clinic/internal/platform/session"
)

func serve(t *testing.T, env *testEnv, target string, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p != nil {
				c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), *p)))
			}
			return next(c)
		}
	})
	NewHandler(env.svc).RegisterRoutes(e.Group(""))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func patient(name string) *auth.Principal {
	return &auth.Principal{Username: name, Name: name, Role: "patient"}
}

func expectDashboardError(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/dashboard/patient" {
		t.Errorf("expected redirect to patient dashboard, got %s", loc)
	}
	var resp session.RedirectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Flashes) != 1 || resp.Flashes[0].Level != session.LevelError {
		t.Errorf("expected one error flash, got %+v", resp.Flashes)
	}
}

func TestDownloadReceipt(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(t, env, "/receipts/1001/download", patient("ana"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, `filename="boleta_1001.pdf"`) {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("expected pdf body")
	}
}

func TestDownloadReceipt_StaffSeesAnyReceipt(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(t, env, "/receipts/1003/download", &auth.Principal{Username: "rosa", Role: "receptionist"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDownloadReceipt_Failures(t *testing.T) {
	tests := []struct {
		name   string
		target string
		broken bool
	}{
		{"unknown appointment", "/receipts/9999/download", false},
		{"bad id", "/receipts/abc/download", false},
		{"other patient's appointment", "/receipts/1003/download", false},
		{"renderer unavailable", "/receipts/1001/download", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.broken {
				env.renderer.err = receipt.ErrRendererUnavailable
			}
			expectDashboardError(t, serve(t, env, tt.target, patient("ana")))
		})
	}
}

func TestDownloadReceipt_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(t, env, "/receipts/1001/download", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestGetQR(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.blobs.Put(context.Background(), "qrs/abcdef012345.png", "image/png", strings.NewReader("png")); err != nil {
		t.Fatal(err)
	}

	rec := serve(t, env, "/qr/abcdef012345", patient("ana"))
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("expected png, got %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}

	for _, ref := range []string{"000000000000", "not-hex", "ABCDEF"} {
		if rec := serve(t, env, "/qr/"+ref, patient("ana")); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", ref, rec.Code)
		}
	}
}

var errDiskFault = errors.New("read /var/lib/clinic/assets: input/output error")

type brokenAppointments struct{}

func (brokenAppointments) Get(context.Context, int64) (*scheduling.Appointment, error) {
	return nil, errDiskFault
}

// brokenBlobs fails every read with an I/O error.
type brokenBlobs struct {
	*blobstore.InMemoryBlobStore
}

func (brokenBlobs) Get(context.Context, string) ([]byte, *blobstore.BlobMetadata, error) {
	return nil, nil, errDiskFault
}

func TestHandler_UnexpectedErrorsStayInTheLog(t *testing.T) {
	env := &testEnv{renderer: &recordingRenderer{}, blobs: blobstore.NewInMemoryBlobStore()}
	env.svc = NewService(brokenAppointments{}, mockPatients{}, env.renderer, env.blobs, zerolog.Nop())
	rec := serve(t, env, "/receipts/1001/download", patient("ana"))
	expectDashboardError(t, rec)
	if strings.Contains(rec.Body.String(), "input/output error") {
		t.Errorf("receipt flash leaks the cause: %s", rec.Body.String())
	}

	env.svc = NewService(sampleAppointments(), mockPatients{}, env.renderer, brokenBlobs{env.blobs}, zerolog.Nop())
	rec = serve(t, env, "/qr/abcdef012345", patient("ana"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "input/output error") {
		t.Errorf("qr error leaks the cause: %s", rec.Body.String())
	}
}
