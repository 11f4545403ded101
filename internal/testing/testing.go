// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/glucolink/glucolink/internal/models"
)

// MockService is a configurable test double for [services.Service].
//
// Each call increments the matching counter so tests can assert how many
// refreshes or upstream fetches happened.
type MockService struct {
	ExchangeFn func(ctx context.Context, code string) (*models.TokenRecord, error)
	RefreshFn  func(ctx context.Context, refreshToken string) (*models.TokenRecord, error)
	ReadingsFn func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error)
	DevicesFn  func(ctx context.Context, accessToken string, start, end time.Time) ([]models.Device, error)

	ExchangeCalls int
	RefreshCalls  int
	ReadingsCalls int
	DevicesCalls  int
}

func (m *MockService) AuthURL(state string) string { return "https://example.com/login?state=" + state }

func (m *MockService) Exchange(ctx context.Context, code string) (*models.TokenRecord, error) {
	m.ExchangeCalls++
	if m.ExchangeFn != nil {
		return m.ExchangeFn(ctx, code)
	}
	return &models.TokenRecord{
		Identity:     models.Identity,
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}, nil
}

func (m *MockService) Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	m.RefreshCalls++
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx, refreshToken)
	}
	return &models.TokenRecord{
		Identity:     models.Identity,
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}, nil
}

func (m *MockService) Readings(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
	m.ReadingsCalls++
	if m.ReadingsFn != nil {
		return m.ReadingsFn(ctx, accessToken, start, end)
	}
	return []models.Reading{}, nil
}

func (m *MockService) Devices(ctx context.Context, accessToken string, start, end time.Time) ([]models.Device, error) {
	m.DevicesCalls++
	if m.DevicesFn != nil {
		return m.DevicesFn(ctx, accessToken, start, end)
	}
	return []models.Device{}, nil
}

func (m *MockService) Name() string { return "mock" }

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRenderer is a test double for [charts.Renderer].
type MockRenderer struct {
	Output []byte
	Err    error
	Calls  int
}

func (m *MockRenderer) Render(readings []models.Reading) ([]byte, error) {
	m.Calls++
	return m.Output, m.Err
}
