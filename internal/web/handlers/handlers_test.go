package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/damaro/courier/internal/channel"
	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/events"
	"github.com/damaro/courier/internal/ratelimit"
	"github.com/damaro/courier/internal/store"
	"github.com/damaro/courier/internal/tenant"
	"github.com/damaro/courier/internal/web/db"
	"github.com/damaro/courier/internal/web/middleware"
)

type fakeClient struct{}

func (fakeClient) SendText(ctx context.Context, addr, text string) error {
	return nil
}

func (fakeClient) SendMedia(ctx context.Context, addr string, media channel.Media, caption string) error {
	return nil
}

func (fakeClient) Status() channel.Status {
	return channel.Status{State: channel.StateConnected}
}

type testEnv struct {
	handlers *Handlers
	db       *db.DB
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(dir, "web.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	st, err := store.Open(filepath.Join(dir, "campaigns.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	limiter, err := ratelimit.NewLimiter(st.DB(), ratelimit.Config{})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	cfg := config.Default()
	registry := tenant.NewRegistry(cfg, limiter, st, nil, logger, func(string, *events.Hub) channel.Client {
		return fakeClient{}
	})

	t.Cleanup(func() {
		registry.Close()
		limiter.Stop()
		st.Close()
		database.Close()
	})

	return &testEnv{
		handlers: New(cfg, database, logger, registry, limiter),
		db:       database,
		logger:   logger,
	}
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asTenant(req *http.Request, tenant string) *http.Request {
	return req.WithContext(middleware.WithTenant(req.Context(), tenant))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func multipartBody(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	creds := map[string]string{"username": "acme", "password": "secret"}

	rec := httptest.NewRecorder()
	env.handlers.Register(rec, jsonRequest("POST", "/register", creds))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handlers.Register(rec, jsonRequest("POST", "/register", creds))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handlers.Login(rec, jsonRequest("POST", "/login", map[string]string{
		"username": "acme", "password": "wrong",
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handlers.Login(rec, jsonRequest("POST", "/login", creds))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("expected a session cookie")
	}

	// The session cookie authenticates requests through the middleware.
	protected := middleware.Auth(env.db, env.logger)(http.HandlerFunc(env.handlers.State))

	req := httptest.NewRequest("GET", "/api/state", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authed state: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/state", nil)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing cookie: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	env.handlers.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/state", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handlers.Register(rec, jsonRequest("POST", "/register", map[string]string{"username": "acme"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing password: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/register", strings.NewReader("not json"))
	env.handlers.Register(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestUploadAndState(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "file", "contacts.csv", "Nombre,Numero\nAna,111\nLuis,222\n")
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handlers.Upload(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["total"]; got != float64(2) {
		t.Errorf("expected total 2, got %v", got)
	}

	req = httptest.NewRequest("GET", "/api/state", nil)
	rec = httptest.NewRecorder()
	env.handlers.State(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("state: expected 200, got %d", rec.Code)
	}
	state := decodeBody(t, rec)
	campaignState := state["campaign"].(map[string]any)
	if campaignState["total"] != float64(2) {
		t.Errorf("expected campaign total 2, got %v", campaignState["total"])
	}
	channelState := state["channel"].(map[string]any)
	if channelState["state"] != "connected" {
		t.Errorf("expected connected channel, got %v", channelState["state"])
	}
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "wrong-field", "contacts.csv", "Nombre\nAna\n")
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handlers.Upload(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestUploadMedia(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "media", "promo.png", "fake image bytes")
	req := httptest.NewRequest("POST", "/api/upload-media", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handlers.UploadMedia(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["filename"]; got != "promo.png" {
		t.Errorf("expected filename echoed, got %v", got)
	}
}

func TestConfigureClampsIntervals(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest("POST", "/api/config", map[string]any{
		"message":     "Hola {nombre}",
		"intervalMin": 5,
		"intervalMax": 300,
	})
	rec := httptest.NewRecorder()
	env.handlers.Configure(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	out := decodeBody(t, rec)
	if out["intervalMin"] != float64(10) {
		t.Errorf("expected min clamped to 10, got %v", out["intervalMin"])
	}
	if out["intervalMax"] != float64(300) {
		t.Errorf("expected max 300, got %v", out["intervalMax"])
	}
}

func TestCampaignControls(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "file", "contacts.csv", "Nombre,Numero\nAna,111\nLuis,222\n")
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handlers.Upload(rec, asTenant(req, "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handlers.Start(rec, asTenant(httptest.NewRequest("POST", "/api/campaign/start", nil), "acme"))
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	buttons := decodeBody(t, rec)
	if buttons["showPause"] != true || buttons["showCancel"] != true {
		t.Errorf("unexpected buttons after start: %v", buttons)
	}

	rec = httptest.NewRecorder()
	env.handlers.Pause(rec, asTenant(httptest.NewRequest("POST", "/api/campaign/pause", nil), "acme"))
	buttons = decodeBody(t, rec)
	if buttons["showResume"] != true {
		t.Errorf("unexpected buttons after pause: %v", buttons)
	}

	rec = httptest.NewRecorder()
	env.handlers.Cancel(rec, asTenant(httptest.NewRequest("POST", "/api/campaign/cancel", nil), "acme"))
	buttons = decodeBody(t, rec)
	if buttons["showStart"] != true || buttons["showCancel"] != false {
		t.Errorf("unexpected buttons after cancel: %v", buttons)
	}
}
