// package services defines interface Service for interacting with upstream glucose APIs
package services

import (
	"context"
	"time"

	"github.com/glucolink/glucolink/internal/models"
)

// Service defines the interface for an upstream glucose data provider.
//
// Implementations are stateless HTTP wrappers: token lifecycle (persistence,
// expiry checks, refresh serialization) belongs to the tokens package.
type Service interface {
	// AuthURL returns the OAuth2 authorization URL for user consent.
	AuthURL(state string) string

	// Exchange trades an authorization code for a token pair.
	Exchange(ctx context.Context, code string) (*models.TokenRecord, error)

	// Refresh mints a new token pair from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error)

	// Readings retrieves estimated glucose values for the given window.
	Readings(ctx context.Context, accessToken string, start, end time.Time) ([]models.Reading, error)

	// Devices retrieves the monitoring devices active during the given window.
	Devices(ctx context.Context, accessToken string, start, end time.Time) ([]models.Device, error)

	// Name returns the name of the provider (e.g., "Dexcom")
	Name() string
}
