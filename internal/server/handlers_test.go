package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/repositories"
	"github.com/glucolink/glucolink/internal/shared"
	itesting "github.com/glucolink/glucolink/internal/testing"
	"github.com/glucolink/glucolink/internal/tokens"
)

type fixture struct {
	db       *sql.DB
	repo     *repositories.TokenRepository
	service  *itesting.MockService
	renderer *itesting.MockRenderer
	router   Router
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	repo := repositories.NewTokenRepository(db)
	service := &itesting.MockService{}
	renderer := &itesting.MockRenderer{Output: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}

	logger := shared.NewLogger(io.Discard)
	manager := tokens.NewManager(repo, service, logger)
	handlers := NewHandlers(manager, service, renderer, logger)
	srv := New("localhost:0", handlers, logger)

	return &fixture{
		db:       db,
		repo:     repo,
		service:  service,
		renderer: renderer,
		router:   srv.Router(),
	}
}

func (f *fixture) storeToken(t *testing.T, expiresAt time.Time) {
	t.Helper()
	err := f.repo.Save(&models.TokenRecord{
		Identity:     models.Identity,
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("failed to store token: %v", err)
	}
}

func (f *fixture) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestGlucoseHandler(t *testing.T) {
	t.Run("Unauthenticated", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/glucose", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for missing token, got %d", rec.Code)
		}

		var body map[string]string
		decodeJSON(t, rec, &body)
		if body["error"] == "" {
			t.Error("expected error field in response")
		}
	})

	t.Run("Valid Token No Refresh", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))
		f.service.ReadingsFn = func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
			if accessToken != "stored-access" {
				t.Errorf("expected stored access token, got %s", accessToken)
			}
			return []models.Reading{{Value: 110}}, nil
		}

		rec := f.do(http.MethodGet, "/glucose?startDate=2025-06-01T00:00:00&endDate=2025-06-02T00:00:00", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.service.RefreshCalls != 0 {
			t.Errorf("expected no refresh for valid token, got %d", f.service.RefreshCalls)
		}

		var readings []models.Reading
		decodeJSON(t, rec, &readings)
		if len(readings) != 1 || readings[0].Value != 110 {
			t.Errorf("unexpected readings %+v", readings)
		}
	})

	t.Run("Expired Token Triggers One Refresh", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(-time.Hour))
		f.service.ReadingsFn = func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
			if accessToken != "refreshed-access" {
				t.Errorf("expected refreshed access token, got %s", accessToken)
			}
			return []models.Reading{}, nil
		}

		rec := f.do(http.MethodGet, "/glucose", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.service.RefreshCalls != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", f.service.RefreshCalls)
		}
	})

	t.Run("Invalid Date Param", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodGet, "/glucose?startDate=yesterday", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad startDate, got %d", rec.Code)
		}
	})

	t.Run("Window Inverted", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodGet, "/glucose?startDate=2025-06-02&endDate=2025-06-01", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for inverted window, got %d", rec.Code)
		}
	})

	t.Run("Upstream Failure", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))
		f.service.ReadingsFn = func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
			return nil, shared.ErrAPIRequest
		}

		rec := f.do(http.MethodGet, "/glucose", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for upstream failure, got %d", rec.Code)
		}
	})
}

func TestTrendsHandler(t *testing.T) {
	t.Run("Computes Summary", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))
		f.service.ReadingsFn = func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
			return []models.Reading{{Value: 100}, {Value: 150}, {Value: 200}}, nil
		}

		rec := f.do(http.MethodGet, "/trends", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var summary models.TrendSummary
		decodeJSON(t, rec, &summary)
		want := models.TrendSummary{Average: 150, Highest: 200, Lowest: 100, Count: 3}
		if summary != want {
			t.Errorf("expected %+v, got %+v", want, summary)
		}
	})

	t.Run("Empty Window", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodGet, "/trends", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for empty window, got %d", rec.Code)
		}

		var summary models.TrendSummary
		decodeJSON(t, rec, &summary)
		if summary.Count != 0 {
			t.Errorf("expected count 0, got %d", summary.Count)
		}
		if summary.Average != 0 {
			t.Errorf("expected defined zero average, got %v", summary.Average)
		}
	})
}

func TestChartsHandler(t *testing.T) {
	t.Run("Returns PNG", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodGet, "/charts", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "image/png" {
			t.Errorf("expected image/png content type, got %s", got)
		}
		if !bytes.Equal(rec.Body.Bytes(), f.renderer.Output) {
			t.Error("expected rendered image bytes in response")
		}
		if f.renderer.Calls != 1 {
			t.Errorf("expected 1 render call, got %d", f.renderer.Calls)
		}
	})

	t.Run("Render Failure", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))
		f.renderer.Err = shared.ErrNoReadings
		f.renderer.Output = nil

		rec := f.do(http.MethodGet, "/charts", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for render failure, got %d", rec.Code)
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	t.Run("POST Exchanges And Stores", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodPost, "/auth/callback", strings.NewReader(`{"code":"auth-code"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body map[string]string
		decodeJSON(t, rec, &body)
		if body["message"] == "" {
			t.Error("expected message field in response")
		}

		record, err := f.repo.Load()
		if err != nil {
			t.Fatalf("expected stored token after callback: %v", err)
		}
		if record.AccessToken != "access-auth-code" {
			t.Errorf("unexpected stored access token %s", record.AccessToken)
		}
	})

	t.Run("POST Missing Code", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodPost, "/auth/callback", strings.NewReader(`{}`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing code, got %d", rec.Code)
		}
		if f.service.ExchangeCalls != 0 {
			t.Errorf("expected no exchange attempt, got %d", f.service.ExchangeCalls)
		}
	})

	t.Run("POST Exchange Failure", func(t *testing.T) {
		f := setup(t)
		f.service.ExchangeFn = func(ctx context.Context, code string) (*models.TokenRecord, error) {
			return nil, shared.ErrExchangeFailed
		}

		rec := f.do(http.MethodPost, "/auth/callback", strings.NewReader(`{"code":"bad"}`))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for exchange failure, got %d", rec.Code)
		}
	})

	t.Run("GET Browser Redirect", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/auth/callback?code=auth-code", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "text/html" {
			t.Errorf("expected text/html content type, got %s", got)
		}
		if _, err := f.repo.Load(); err != nil {
			t.Errorf("expected stored token after browser callback: %v", err)
		}
	})

	t.Run("GET Denied", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/auth/callback?error=access_denied", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for denied authorization, got %d", rec.Code)
		}
	})
}

func TestRefreshHandler(t *testing.T) {
	t.Run("Forces Refresh", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodPost, "/auth/refresh", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.service.RefreshCalls != 1 {
			t.Errorf("expected 1 refresh call, got %d", f.service.RefreshCalls)
		}

		var body map[string]any
		decodeJSON(t, rec, &body)
		if body["access_token"] != "refreshed-access" {
			t.Errorf("unexpected access_token %v", body["access_token"])
		}
		if body["refresh_token"] != "refreshed-refresh" {
			t.Errorf("unexpected refresh_token %v", body["refresh_token"])
		}
		if expiresIn, ok := body["expires_in"].(float64); !ok || expiresIn <= 0 {
			t.Errorf("expected positive expires_in, got %v", body["expires_in"])
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodPost, "/auth/refresh", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 without stored token, got %d", rec.Code)
		}
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/auth/refresh", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("Unauthenticated", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]any
		decodeJSON(t, rec, &body)
		if body["status"] != "ok" {
			t.Errorf("expected status ok, got %v", body["status"])
		}
		if body["authenticated"] != false {
			t.Errorf("expected authenticated false, got %v", body["authenticated"])
		}
	})

	t.Run("Authenticated", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))

		rec := f.do(http.MethodGet, "/health", nil)

		var body map[string]any
		decodeJSON(t, rec, &body)
		if body["authenticated"] != true {
			t.Errorf("expected authenticated true, got %v", body["authenticated"])
		}
	})
}

func TestDevicesHandler(t *testing.T) {
	t.Run("Returns Devices", func(t *testing.T) {
		f := setup(t)
		f.storeToken(t, time.Now().Add(2*time.Hour))
		f.service.DevicesFn = func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Device, error) {
			return []models.Device{{Model: "G7"}}, nil
		}

		rec := f.do(http.MethodGet, "/devices", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var devices []models.Device
		decodeJSON(t, rec, &devices)
		if len(devices) != 1 || devices[0].Model != "G7" {
			t.Errorf("unexpected devices %+v", devices)
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := setup(t)

		rec := f.do(http.MethodGet, "/devices", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}
