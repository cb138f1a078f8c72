package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xpstore/internal/catalog"
	"xpstore/internal/storefront"
	"xpstore/internal/web"
	"xpstore/internal/webhook"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	view := storefront.New(catalog.MustDefault(), webhook.NewClient("http://127.0.0.1:1", time.Second))
	return &App{mux: routes(web.New(view, nil), "*")}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCustom404(t *testing.T) {
	app := newTestApp(t)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "404 - Страница не найдена") || strings.Contains(body, "404 page not found") {
		t.Errorf("unexpected 404 body: %q", body)
	}
}

func TestAPINotFoundStaysJSON(t *testing.T) {
	app := newTestApp(t)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attempts", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"journal_disabled"`) {
		t.Errorf("body = %q, want JSON error", rec.Body.String())
	}
}

func TestRequestsAreCounted(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 3; i++ {
		app.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if app.totalRequests != 3 {
		t.Errorf("totalRequests = %d, want 3", app.totalRequests)
	}
}

func TestRequestTimeoutOutlastsWebhook(t *testing.T) {
	tests := []struct {
		webhook, want time.Duration
	}{
		{0, 15 * time.Second},
		{10 * time.Second, 15 * time.Second},
		{30 * time.Second, 35 * time.Second},
	}
	for _, tt := range tests {
		if got := requestTimeout(tt.webhook); got != tt.want {
			t.Errorf("requestTimeout(%v) = %v, want %v", tt.webhook, got, tt.want)
		}
		if got := requestTimeout(tt.webhook); got <= tt.webhook {
			t.Errorf("requestTimeout(%v) = %v does not outlast the webhook call", tt.webhook, got)
		}
	}
}

func TestSlowWebhookConfirmIsNotCutOff(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"success":true}`))
	}))
	defer hook.Close()

	view := storefront.New(catalog.MustDefault(), webhook.NewClient(hook.URL, 20*time.Second))
	app := &App{mux: routes(web.New(view, nil), "*"), webhookTimeout: 20 * time.Second}
	view.Open(2)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/confirm", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("confirm status = %d, want 200", rec.Code)
	}
	if view.User().BalanceXP != 10000 {
		t.Errorf("balance = %d, want 10000", view.User().BalanceXP)
	}
}
