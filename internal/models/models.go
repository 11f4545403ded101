// package models defines the data model for the glucose proxy service
package models

import (
	"fmt"
	"time"
)

// Identity is the fixed key for the single token row.
//
// The service is single-tenant: exactly one account is ever linked, so the
// token table holds at most one record, always under this key.
const Identity = "default"

// ExpirySkew is subtracted from the recorded expiry when deciding whether a
// token is still usable, so a token cannot lapse between the check and the
// upstream call.
const ExpirySkew = 30 * time.Second

// Model defines the base interface for persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// TokenRecord is the persisted OAuth2 token pair for the linked account.
//
// Created on the first successful authorization-code exchange and overwritten
// in place on every refresh. ExpiresAt is absolute: exchange time plus the
// upstream-reported lifetime.
type TokenRecord struct {
	Identity     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Created      time.Time
	Updated      time.Time
}

func (t *TokenRecord) ID() string           { return t.Identity }
func (t *TokenRecord) CreatedAt() time.Time { return t.Created }
func (t *TokenRecord) UpdatedAt() time.Time { return t.Updated }

// Validate checks that the record carries the fields every stored token needs.
func (t *TokenRecord) Validate() error {
	if t.Identity == "" {
		return fmt.Errorf("token record missing identity")
	}
	if t.AccessToken == "" {
		return fmt.Errorf("token record missing access token")
	}
	if t.ExpiresAt.IsZero() {
		return fmt.Errorf("token record missing expiry")
	}
	return nil
}

// Expired reports whether the access token should be treated as unusable at
// the given instant, applying [ExpirySkew].
func (t *TokenRecord) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt.Add(-ExpirySkew))
}

// ExpiresIn returns the remaining token lifetime in whole seconds at the
// given instant. Negative values are clamped to zero.
func (t *TokenRecord) ExpiresIn(now time.Time) int64 {
	remaining := int64(t.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reading represents a single estimated glucose value from the upstream API.
type Reading struct {
	SystemTime  time.Time `json:"systemTime"`
	DisplayTime time.Time `json:"displayTime"`
	Value       float64   `json:"value"`
	Trend       string    `json:"trend"`
	TrendRate   float64   `json:"trendRate"`
	Unit        string    `json:"unit"`
}

// TrendSummary aggregates a window of readings.
//
// A summary over zero readings is the zero value with Count 0, never NaN.
type TrendSummary struct {
	Average float64 `json:"average"`
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
	Count   int     `json:"count"`
}

// Device represents a glucose monitoring device registered to the account.
type Device struct {
	Model             string    `json:"model"`
	LastUploadDate    time.Time `json:"lastUploadDate"`
	TransmitterGen    string    `json:"transmitterGeneration"`
	DisplayDevice     string    `json:"displayDevice"`
	AlertScheduleName string    `json:"alertScheduleName,omitempty"`
}
