// Package provider defines the contract every upstream streaming service
// implements, plus the registry and supervisor that drive adapters.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/leduong/EPlusTV/internal/models"
)

// Playback resolution failures.
var (
	ErrNotLive       = errors.New("event is not live")
	ErrNotEntitled   = errors.New("account is not entitled to this event")
	ErrBlackout      = errors.New("event is blacked out")
	ErrNoCredentials = errors.New("provider has no credentials")
	ErrUnknown       = errors.New("no adapter for provider")
)

// PlaybackInfo is a resolved stream: the master playlist URL and the headers
// every request against it must carry.
type PlaybackInfo struct {
	URL     string
	Headers map[string]string
}

// Header returns the headers as an http.Header.
func (p *PlaybackInfo) Header() http.Header {
	h := make(http.Header, len(p.Headers))
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

// Adapter is one upstream provider.
type Adapter interface {
	// Key is the provider key entries from this adapter carry in Entry.From.
	Key() string
	// Initialize loads persisted credentials and any static configuration.
	Initialize(ctx context.Context) error
	// RefreshTokens reloads or renews credentials.
	RefreshTokens(ctx context.Context) error
	// GetSchedule returns the provider's current listing.
	GetSchedule(ctx context.Context) ([]models.Entry, error)
	// GetEventData resolves the stream for an entry. It must be safe to call
	// more than once for the same entry.
	GetEventData(ctx context.Context, entry *models.Entry) (*PlaybackInfo, error)
}

// StaleChecker is implemented by adapters whose resolved playback expires
// with their credentials.
type StaleChecker interface {
	CredentialsStale(now time.Time) bool
}
