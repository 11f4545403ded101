// package tokens owns the token lifecycle: load, expiry check, refresh, persist.
package tokens

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/glucolink/glucolink/internal/models"
	"github.com/glucolink/glucolink/internal/repositories"
	"github.com/glucolink/glucolink/internal/services"
	"github.com/glucolink/glucolink/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Manager coordinates the stored [models.TokenRecord] with the upstream
// authorization server.
//
// Refreshes are serialized: concurrent callers that observe an expired token
// collapse into a single upstream refresh call and all receive the winner's
// record.
type Manager struct {
	repo    *repositories.TokenRepository
	service services.Service
	logger  *log.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewManager creates a new Manager backed by the given repository and upstream service.
func NewManager(repo *repositories.TokenRepository, service services.Service, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		repo:    repo,
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

// Exchange trades an authorization code for a token pair and persists it,
// overwriting any previously stored record.
func (m *Manager) Exchange(ctx context.Context, code string) (*models.TokenRecord, error) {
	record, err := m.service.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Save(record); err != nil {
		return nil, err
	}

	m.logger.Info("authorization code exchanged", "expires_at", record.ExpiresAt)
	return record, nil
}

// Current returns a usable token record, refreshing at most once when the
// stored one is expired.
//
// Returns [shared.ErrNotAuthenticated] when no record is stored.
func (m *Manager) Current(ctx context.Context) (*models.TokenRecord, error) {
	record, err := m.repo.Load()
	if err != nil {
		return nil, err
	}

	if !record.Expired(m.now()) {
		return record, nil
	}

	m.logger.Debug("stored token expired", "expires_at", record.ExpiresAt)
	return m.Refresh(ctx)
}

// Refresh forces a refresh-token grant against the upstream authorization
// server and persists the result.
//
// Concurrent callers share a single in-flight refresh.
func (m *Manager) Refresh(ctx context.Context) (*models.TokenRecord, error) {
	result, err, joined := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if joined {
		m.logger.Debug("refresh result shared with concurrent caller")
	}
	return result.(*models.TokenRecord), nil
}

func (m *Manager) refresh(ctx context.Context) (*models.TokenRecord, error) {
	stored, err := m.repo.Load()
	if err != nil {
		return nil, err
	}
	if stored.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	record, err := m.service.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Some providers rotate refresh tokens; keep the old one when the
	// response omits it.
	if record.RefreshToken == "" {
		record.RefreshToken = stored.RefreshToken
	}
	record.Created = stored.Created

	if err := m.repo.Save(record); err != nil {
		return nil, err
	}

	m.logger.Info("token refreshed", "expires_at", record.ExpiresAt)
	return record, nil
}

// Status returns the stored record without triggering a refresh, or
// [shared.ErrNotAuthenticated] when none exists.
func (m *Manager) Status() (*models.TokenRecord, error) {
	return m.repo.Load()
}
