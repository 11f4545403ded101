// Dexcom API implementation of [Service]
//
// Response types based on https://developer.dexcom.com/docs/dexcom/v2
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/shared"
	"golang.org/x/oauth2"
)

const (
	dexcomBaseURL        = "https://api.dexcom.com"
	dexcomSandboxBaseURL = "https://sandbox-api.dexcom.com"

	// Dexcom's v2 endpoints use second-resolution local timestamps without a zone.
	dexcomTimeLayout = "2006-01-02T15:04:05"
)

// DexcomEGV represents a single estimated glucose value on the wire.
type DexcomEGV struct {
	SystemTime  string  `json:"systemTime"`
	DisplayTime string  `json:"displayTime"`
	Value       float64 `json:"value"`
	Status      string  `json:"status"`
	Trend       string  `json:"trend"`
	TrendRate   float64 `json:"trendRate"`
}

// DexcomEGVResponse represents the /users/self/egvs response envelope.
type DexcomEGVResponse struct {
	Unit     string      `json:"unit"`
	RateUnit string      `json:"rateUnit"`
	EGVs     []DexcomEGV `json:"egvs"`
}

// DexcomDevice represents a monitoring device on the wire.
type DexcomDevice struct {
	Model                 string `json:"model"`
	LastUploadDate        string `json:"lastUploadDate"`
	TransmitterGeneration string `json:"transmitterGeneration"`
	DisplayDevice         string `json:"displayDevice"`
	AlertScheduleList     []struct {
		AlertScheduleSettings struct {
			AlertScheduleName string `json:"alertScheduleName"`
		} `json:"alertScheduleSettings"`
	} `json:"alertScheduleList"`
}

// DexcomDeviceResponse represents the /users/self/devices response envelope.
type DexcomDeviceResponse struct {
	Devices []DexcomDevice `json:"devices"`
}

// DexcomService implements the [Service] interface for the Dexcom API.
// Uses [oauth2] for the authorization-code and refresh-token grants.
type DexcomService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
}

// NewDexcomService creates a new Dexcom service with the given application credentials.
//
// When sandbox is true, all requests target sandbox-api.dexcom.com.
func NewDexcomService(credentials shared.DexcomConfig) (*DexcomService, error) {
	if credentials.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if credentials.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/auth/callback"
	}

	baseURL := dexcomBaseURL
	if credentials.Sandbox {
		baseURL = dexcomSandboxBaseURL
	}

	config := &oauth2.Config{
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  baseURL + "/v2/oauth2/login",
			TokenURL: baseURL + "/v2/oauth2/token",
		},
	}

	return &DexcomService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
	}, nil
}

func (s *DexcomService) Name() string {
	return "Dexcom"
}

// AuthURL returns the OAuth2 authorization URL for user consent.
func (s *DexcomService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token pair.
func (s *DexcomService) Exchange(ctx context.Context, code string) (*models.TokenRecord, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExchangeFailed, err)
	}
	return recordFromToken(token), nil
}

// Refresh mints a new token pair using the refresh-token grant.
func (s *DexcomService) Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	source := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return recordFromToken(token), nil
}

// Readings retrieves estimated glucose values for the given window.
func (s *DexcomService) Readings(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error) {
	endpoint := fmt.Sprintf("/v2/users/self/egvs?%s", rangeQuery(start, end))

	var response DexcomEGVResponse
	if err := s.doRequest(ctx, accessToken, endpoint, &response); err != nil {
		return nil, err
	}

	readings := make([]models.Reading, 0, len(response.EGVs))
	for _, egv := range response.EGVs {
		reading := models.Reading{
			Value:     egv.Value,
			Trend:     egv.Trend,
			TrendRate: egv.TrendRate,
			Unit:      response.Unit,
		}
		if t, err := time.Parse(dexcomTimeLayout, egv.SystemTime); err == nil {
			reading.SystemTime = t
		}
		if t, err := time.Parse(dexcomTimeLayout, egv.DisplayTime); err == nil {
			reading.DisplayTime = t
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

// Devices retrieves the monitoring devices active during the given window.
func (s *DexcomService) Devices(ctx context.Context, accessToken string, start, end time.Time) ([]models.Device, error) {
	endpoint := fmt.Sprintf("/v2/users/self/devices?%s", rangeQuery(start, end))

	var response DexcomDeviceResponse
	if err := s.doRequest(ctx, accessToken, endpoint, &response); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(response.Devices))
	for _, d := range response.Devices {
		device := models.Device{
			Model:          d.Model,
			TransmitterGen: d.TransmitterGeneration,
			DisplayDevice:  d.DisplayDevice,
		}
		if t, err := time.Parse(dexcomTimeLayout, d.LastUploadDate); err == nil {
			device.LastUploadDate = t
		}
		if len(d.AlertScheduleList) > 0 {
			device.AlertScheduleName = d.AlertScheduleList[0].AlertScheduleSettings.AlertScheduleName
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// doRequest performs an authenticated GET against the Dexcom API and decodes the JSON response.
func (s *DexcomService) doRequest(ctx context.Context, accessToken, endpoint string, result any) error {
	if accessToken == "" {
		return shared.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: upstream rejected token", shared.ErrTokenExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// oauthContext injects the service's HTTP client into the context used by the
// oauth2 package for token endpoint calls.
func (s *DexcomService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// rangeQuery encodes a start/end window in Dexcom's timestamp format.
func rangeQuery(start, end time.Time) string {
	params := url.Values{}
	params.Set("startDate", start.Format(dexcomTimeLayout))
	params.Set("endDate", end.Format(dexcomTimeLayout))
	return params.Encode()
}

// recordFromToken converts an [oauth2.Token] into a [models.TokenRecord].
//
// The oauth2 package computes Expiry as now + expires_in from the token response.
func recordFromToken(token *oauth2.Token) *models.TokenRecord {
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &models.TokenRecord{
		Identity:     models.Identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    token.Expiry,
	}
}
