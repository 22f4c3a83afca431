package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestSession_SetGet(t *testing.T) {
	s := New("abc")
	if s.Modified() {
		t.Fatal("fresh session should not be modified")
	}
	if err := s.Set("user", map[string]string{"username": "ana"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got map[string]string
	found, err := s.Get("user", &got)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got["username"] != "ana" {
		t.Errorf("expected ana, got %q", got["username"])
	}
	if !s.Modified() {
		t.Error("expected modified after Set")
	}
	found, _ = s.Get("missing", &got)
	if found {
		t.Error("expected missing key to be absent")
	}
}

func TestSession_DeleteAndClear(t *testing.T) {
	s := newSession("x", nil, false)
	s.Delete("nothing")
	if s.Modified() {
		t.Error("deleting an absent key should not mark modified")
	}
	_ = s.Set("a", 1)
	_ = s.Set("b", 2)
	s.Delete("a")
	if s.Has("a") || !s.Has("b") {
		t.Error("expected only b to remain")
	}
	s.Clear()
	if s.Has("b") {
		t.Error("expected clear to drop all values")
	}
}

func TestFlashes(t *testing.T) {
	s := New("f")
	if err := s.AddFlash(Success("saved"), Error("oops")); err != nil {
		t.Fatalf("add flash: %v", err)
	}
	_ = s.AddFlash(Info("more"))
	got := s.PopFlashes()
	if len(got) != 3 {
		t.Fatalf("expected 3 flashes, got %d", len(got))
	}
	if got[0].Level != LevelSuccess || got[1].Level != LevelError || got[2].Message != "more" {
		t.Errorf("unexpected flashes: %+v", got)
	}
	if again := s.PopFlashes(); again != nil {
		t.Errorf("expected flashes consumed, got %+v", again)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	s := New("id1")
	_ = s.Set("k", "v")
	if err := store.Save(ctx, "id1", s.values, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "id1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(ctx, "id1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}

	_ = store.Save(ctx, "id2", s.values, time.Minute)
	now = now.Add(time.Hour)
	if n := store.Sweep(); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec("secret", "clinic")
	token, err := codec.Encode("sess-1", time.Hour)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	id, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != "sess-1" {
		t.Errorf("expected sess-1, got %q", id)
	}
}

func TestCodec_Rejects(t *testing.T) {
	codec := NewCodec("secret", "clinic")
	token, _ := codec.Encode("sess-1", time.Hour)

	other := NewCodec("other-secret", "clinic")
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalidCookie) {
		t.Errorf("expected ErrInvalidCookie for wrong key, got %v", err)
	}

	wrongIssuer := NewCodec("secret", "elsewhere")
	if _, err := wrongIssuer.Decode(token); !errors.Is(err, ErrInvalidCookie) {
		t.Errorf("expected ErrInvalidCookie for wrong issuer, got %v", err)
	}

	codec.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := codec.Decode(token); !errors.Is(err, ErrInvalidCookie) {
		t.Errorf("expected ErrInvalidCookie for expired token, got %v", err)
	}

	if _, err := codec.Decode("garbage"); !errors.Is(err, ErrInvalidCookie) {
		t.Errorf("expected ErrInvalidCookie for garbage, got %v", err)
	}
}

func newTestManager() (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	m := NewManager(store, NewCodec("secret", "clinic"), time.Hour, false, zerolog.Nop())
	return m, store
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestMiddleware_PersistsAcrossRequests(t *testing.T) {
	m, _ := newTestManager()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/set", func(c echo.Context) error {
		_ = FromContext(c).Set("user", "ana")
		return c.NoContent(http.StatusOK)
	})
	e.GET("/get", func(c echo.Context) error {
		var user string
		_, _ = FromContext(c).Get("user", &user)
		return c.String(http.StatusOK, user)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/set", nil))
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie on first visit")
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Body.String() != "ana" {
		t.Errorf("expected ana, got %q", rec.Body.String())
	}
	if sessionCookie(rec) != nil {
		t.Error("known session should not get a new cookie")
	}
}

func TestMiddleware_TamperedCookieStartsFresh(t *testing.T) {
	m, _ := newTestManager()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, FromContext(c).ID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-token"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if sessionCookie(rec) == nil {
		t.Error("expected a replacement cookie")
	}
	if rec.Body.String() == "" {
		t.Error("expected a session id")
	}
}

func TestRenew_MovesValuesAndDropsOldID(t *testing.T) {
	m, store := newTestManager()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/set", func(c echo.Context) error {
		_ = FromContext(c).Set("draft", "cardiology")
		return c.NoContent(http.StatusOK)
	})
	e.POST("/login", func(c echo.Context) error {
		Renew(c)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/set", nil))
	first := sessionCookie(rec)
	oldID, _ := m.codec.Decode(first.Value)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(first)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	second := sessionCookie(rec)
	if second == nil {
		t.Fatal("expected a new cookie after renew")
	}
	newID, _ := m.codec.Decode(second.Value)
	if newID == oldID {
		t.Fatal("expected a different session id")
	}

	ctx := context.Background()
	if _, err := store.Load(ctx, oldID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old session removed, got %v", err)
	}
	values, err := store.Load(ctx, newID)
	if err != nil {
		t.Fatalf("load renewed: %v", err)
	}
	if string(values["draft"]) != `"cardiology"` {
		t.Errorf("expected draft carried over, got %s", values["draft"])
	}
}

func TestRedirect(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/booking", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Redirect(c, "/booking/doctor", Warning("pick a doctor")); err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected 303, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderLocation) != "/booking/doctor" {
		t.Errorf("unexpected location %q", rec.Header().Get(echo.HeaderLocation))
	}
	flashes := FromContext(c).PopFlashes()
	if len(flashes) != 1 || flashes[0].Message != "pick a doctor" {
		t.Errorf("expected flash queued, got %+v", flashes)
	}
}
