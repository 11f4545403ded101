package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/glucolink/glucolink/internal/charts"
	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/services"
	"github.com/glucolink/glucolink/internal/shared"
	"github.com/glucolink/glucolink/internal/tokens"
	"github.com/glucolink/glucolink/internal/trends"
)

// defaultWindow is the readings window when startDate/endDate are absent.
const defaultWindow = 24 * time.Hour

// Handlers holds the dependencies for all HTTP endpoints.
//
// Every data-fetching endpoint follows one sequence: obtain a usable token
// from the manager (refreshing at most once when expired), call upstream,
// shape the response.
type Handlers struct {
	manager  *tokens.Manager
	service  services.Service
	renderer charts.Renderer
	logger   *log.Logger
	now      func() time.Time
}

// NewHandlers creates the endpoint set with the given collaborators.
func NewHandlers(manager *tokens.Manager, service services.Service, renderer charts.Renderer, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if renderer == nil {
		renderer = charts.NewLineRenderer()
	}
	return &Handlers{
		manager:  manager,
		service:  service,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// callbackRequest is the POST /auth/callback body.
type callbackRequest struct {
	Code string `json:"code"`
}

// refreshResponse is the POST /auth/refresh body.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// CallbackHandler wraps the authorization callback as a [Handler] so both the
// browser redirect (GET with query params) and API clients (POST with a JSON
// body) land on the same route.
type CallbackHandler struct {
	handlers *Handlers
}

// CallbackHandler returns the authorization callback as a registrable [Handler].
func (h *Handlers) CallbackHandler() *CallbackHandler {
	return &CallbackHandler{handlers: h}
}

// Routes returns the HTTP routes this handler serves.
func (c *CallbackHandler) Routes() []string {
	return []string{"/auth/callback"}
}

// ServeHTTP dispatches the callback by method.
func (c *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.handlers.callbackBrowser(w, r)
	case http.MethodPost:
		c.handlers.callbackAPI(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// callbackAPI handles POST /auth/callback with a JSON {code} body.
func (h *Handlers) callbackAPI(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: missing authorization code", shared.ErrInvalidInput))
		return
	}

	if _, err := h.manager.Exchange(r.Context(), req.Code); err != nil {
		h.logger.Error("code exchange failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "authorization successful"})
}

// callbackBrowser handles the GET redirect from the upstream consent page.
func (h *Handlers) callbackBrowser(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		errDesc := r.URL.Query().Get("error_description")
		h.logger.Error("authorization denied", "error", errParam, "description", errDesc)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if _, err := h.manager.Exchange(r.Context(), code); err != nil {
		h.logger.Error("code exchange failed", "err", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Account Linked</title></head>
<body>
    <h1>&#10003; Account linked</h1>
    <p>You can close this window.</p>
</body>
</html>
`)
}

// Refresh handles POST /auth/refresh, forcing a refresh-token grant.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	record, err := h.manager.Refresh(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresIn:    record.ExpiresIn(h.now()),
	})
}

// Glucose handles GET /glucose, returning raw readings for the window.
func (h *Handlers) Glucose(w http.ResponseWriter, r *http.Request) {
	readings, ok := h.fetchReadings(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// Trends handles GET /trends, returning aggregate statistics for the window.
func (h *Handlers) Trends(w http.ResponseWriter, r *http.Request) {
	readings, ok := h.fetchReadings(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trends.Summarize(readings))
}

// Charts handles GET /charts, returning a PNG plot for the window.
func (h *Handlers) Charts(w http.ResponseWriter, r *http.Request) {
	readings, ok := h.fetchReadings(w, r)
	if !ok {
		return
	}

	image, err := h.renderer.Render(readings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(image)
}

// Devices handles GET /devices, returning monitoring devices for the window.
func (h *Handlers) Devices(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.manager.Current(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	devices, err := h.service.Devices(r.Context(), record.AccessToken, start, end)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if record, err := h.manager.Status(); err == nil && !record.Expired(h.now()) {
		authenticated = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"service":       h.service.Name(),
		"authenticated": authenticated,
	})
}

// fetchReadings performs the shared load-token/refresh/call-upstream sequence.
// On failure the response has already been written and ok is false.
func (h *Handlers) fetchReadings(w http.ResponseWriter, r *http.Request) ([]models.Reading, bool) {
	start, end, err := parseWindow(r, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	record, err := h.manager.Current(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}

	readings, err := h.service.Readings(r.Context(), record.AccessToken, start, end)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}

	return readings, true
}

// parseWindow extracts the startDate/endDate query params, defaulting to the
// trailing [defaultWindow] when absent.
func parseWindow(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	end := now
	start := now.Add(-defaultWindow)

	if v := r.URL.Query().Get("startDate"); v != "" {
		parsed, err := parseTimestamp(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: startDate %q", shared.ErrInvalidArgument, v)
		}
		start = parsed
	}

	if v := r.URL.Query().Get("endDate"); v != "" {
		parsed, err := parseTimestamp(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate %q", shared.ErrInvalidArgument, v)
		}
		end = parsed
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate before startDate", shared.ErrInvalidArgument)
	}

	return start, end, nil
}

// parseTimestamp accepts the upstream timestamp layout or a bare date.
func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// statusFor maps error chains to HTTP status codes: missing or unusable
// credentials are 401, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrNoRefreshToken),
		errors.Is(err, shared.ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
