// Package mlbtv implements the MLB.tv provider adapter.
package mlbtv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leduong/EPlusTV/internal/credentials"
	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/internal/remote"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

// Key is both the listing key and the credential document key.
const Key = "mlbtv"

const (
	clientName    = "WEB"
	clientVersion = "7.8.1"

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	androidUserAgent = "okhttp/4.12.0"

	prefixBigInning  = "Big Inning - "
	prefixMLBNetwork = "MLB Network - "
	prefixSNY        = "SNY - "
	prefixSNLA       = "SNLA - "
)

// Endpoints are the upstream URLs the adapter talks to.
type Endpoints struct {
	GraphQL    string
	BigInning  string
	MLBNetwork string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		GraphQL:    "https://media-gateway.mlb.com/graphql",
		BigInning:  "https://dapi.mlbinfra.com/v2/content/en-us/vsmcontents/big-inning",
		MLBNetwork: "https://falcon.mlbinfra.com/api/v1/mvpds/mlbn/feeds",
	}
}

// Entitlement is a subscription code returned by initSession.
type Entitlement struct {
	Code string `json:"code"`
}

// State is the persisted credential document. ExpiresAt is unix ms.
type State struct {
	DeviceID     string        `json:"device_id,omitempty"`
	AccessToken  string        `json:"access_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresAt    int64         `json:"expires_at,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	Entitlements []Entitlement `json:"entitlements,omitempty"`
}

// Adapter resolves MLB.tv media ids into playable streams.
type Adapter struct {
	mu sync.RWMutex

	client    *httpclient.Client
	creds     credentials.Store
	listings  remote.Store
	endpoints Endpoints
	logger    *slog.Logger

	state State
}

// New creates an MLB.tv adapter.
func New(client *httpclient.Client, creds credentials.Store, listings remote.Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    client,
		creds:     creds,
		listings:  listings,
		endpoints: DefaultEndpoints(),
		logger:    observability.WithProvider(logger, Key),
	}
}

// WithEndpoints overrides the upstream URLs.
func (a *Adapter) WithEndpoints(e Endpoints) *Adapter {
	a.endpoints = e
	return a
}

// Key returns the provider key.
func (a *Adapter) Key() string { return Key }

// Initialize loads credentials and assigns a device id on first use.
func (a *Adapter) Initialize(ctx context.Context) error {
	if err := a.load(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.state.DeviceID != "" {
		a.mu.Unlock()
		return nil
	}
	a.state.DeviceID = uuid.NewString()
	st := a.state
	a.mu.Unlock()

	if err := a.creds.Save(ctx, Key, st); err != nil {
		return fmt.Errorf("saving device id: %w", err)
	}
	return nil
}

// RefreshTokens reloads the credential document, keeping the playback session.
func (a *Adapter) RefreshTokens(ctx context.Context) error {
	return a.load(ctx)
}

// GetSchedule returns the published MLB.tv listing.
func (a *Adapter) GetSchedule(ctx context.Context) ([]models.Entry, error) {
	return provider.FetchListing(ctx, a.listings, Key, Key)
}

// CredentialsStale reports whether the access token has expired, either by
// the stored expiry or by the token's own exp claim.
func (a *Adapter) CredentialsStale(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state.ExpiresAt > 0 && now.UnixMilli() >= a.state.ExpiresAt {
		return true
	}
	return a.state.AccessToken != "" && provider.TokenExpired(a.state.AccessToken, now)
}

// GetEventData resolves the stream for entry. The entry id is the media id;
// network feeds carry a name prefix instead.
func (a *Adapter) GetEventData(ctx context.Context, entry *models.Entry) (*provider.PlaybackInfo, error) {
	if a.CredentialsStale(time.Now()) {
		if err := a.load(ctx); err != nil {
			a.logger.Warn("reloading stale credentials failed", slog.String("error", err.Error()))
		}
	}

	a.mu.RLock()
	token := a.state.AccessToken
	a.mu.RUnlock()
	if token == "" {
		return nil, fmt.Errorf("media %s: %w", entry.ID, provider.ErrNoCredentials)
	}

	if err := a.initSession(ctx); err != nil {
		return nil, err
	}

	id := entry.ID
	switch {
	case strings.Contains(id, prefixBigInning):
		url, err := a.bigInningStream(ctx)
		if err != nil {
			return nil, err
		}
		return &provider.PlaybackInfo{URL: url, Headers: map[string]string{}}, nil
	case strings.Contains(id, prefixMLBNetwork):
		url, err := a.mlbNetworkStream(ctx)
		if err != nil {
			return nil, err
		}
		return &provider.PlaybackInfo{URL: url, Headers: map[string]string{}}, nil
	case strings.Contains(id, prefixSNY):
		return a.collectionStream(ctx, "SNY_LIVE")
	case strings.Contains(id, prefixSNLA):
		return a.collectionStream(ctx, "SNLA_LIVE")
	}

	return a.playback(ctx, id)
}

func playbackHeaders() map[string]string {
	return map[string]string{
		"accept":          "application/json, text/plain, */*",
		"accept-encoding": "identity",
		"accept-language": "en-US,en;q=0.5",
		"connection":      "keep-alive",
	}
}

func (a *Adapter) graphQLHeaders() http.Header {
	a.mu.RLock()
	token := a.state.AccessToken
	a.mu.RUnlock()

	h := http.Header{}
	h.Set("Cache-Control", "no-cache")
	h.Set("Origin", "https://www.mlb.com")
	h.Set("Pragma", "no-cache")
	h.Set("Referer", "https://www.mlb.com/")
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	h.Set("X-Client-Name", clientName)
	h.Set("X-Client-Version", clientVersion)
	return h
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func (a *Adapter) graphQL(ctx context.Context, req gqlRequest, data any) error {
	var resp struct {
		Data   any        `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	resp.Data = data
	if err := a.client.PostJSON(ctx, a.endpoints.GraphQL, a.graphQLHeaders(), req, &resp); err != nil {
		if httpclient.IsStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("%s: %w", req.OperationName, provider.ErrNoCredentials)
		}
		return fmt.Errorf("%s: %w", req.OperationName, err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%s: %w", req.OperationName, classifyGraphQL(resp.Errors[0]))
	}
	return nil
}

func classifyGraphQL(e gqlError) error {
	text := strings.ToUpper(e.Extensions.Code + " " + e.Message)
	switch {
	case strings.Contains(text, "BLACKOUT"):
		return fmt.Errorf("%w: %s", provider.ErrBlackout, e.Message)
	case strings.Contains(text, "ENTITLE"), strings.Contains(text, "NOT_AUTHORIZED"):
		return fmt.Errorf("%w: %s", provider.ErrNotEntitled, e.Message)
	default:
		return errors.New(e.Message)
	}
}

func (a *Adapter) initSession(ctx context.Context) error {
	a.mu.RLock()
	deviceID := a.state.DeviceID
	a.mu.RUnlock()

	var data struct {
		InitSession struct {
			DeviceID     string        `json:"deviceId"`
			SessionID    string        `json:"sessionId"`
			Entitlements []Entitlement `json:"entitlements"`
		} `json:"initSession"`
	}
	err := a.graphQL(ctx, gqlRequest{
		OperationName: "initSession",
		Query:         initSessionMutation,
		Variables: map[string]any{
			"clientType": clientName,
			"device": map[string]any{
				"appVersion":         clientVersion,
				"deviceFamily":       "desktop",
				"knownDeviceId":      deviceID,
				"languagePreference": "ENGLISH",
				"manufacturer":       "Apple",
				"model":              "Macintosh",
				"os":                 "macos",
				"osVersion":          "10.15",
			},
		},
	}, &data)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.state.SessionID = data.InitSession.SessionID
	a.state.Entitlements = data.InitSession.Entitlements
	if a.state.DeviceID == "" && data.InitSession.DeviceID != "" {
		a.state.DeviceID = data.InitSession.DeviceID
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) playback(ctx context.Context, mediaID string) (*provider.PlaybackInfo, error) {
	a.mu.RLock()
	deviceID, sessionID := a.state.DeviceID, a.state.SessionID
	a.mu.RUnlock()

	var data struct {
		InitPlaybackSession struct {
			Playback struct {
				URL        string `json:"url"`
				Token      string `json:"token"`
				Expiration string `json:"expiration"`
			} `json:"playback"`
		} `json:"initPlaybackSession"`
	}
	err := a.graphQL(ctx, gqlRequest{
		OperationName: "initPlaybackSession",
		Query:         initPlaybackSessionMutation,
		Variables: map[string]any{
			"adCapabilities": []string{"NONE"},
			"deviceId":       deviceID,
			"mediaId":        mediaID,
			"quality":        "PLACEHOLDER",
			"sessionId":      sessionID,
		},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("media %s: %w", mediaID, err)
	}

	pb := data.InitPlaybackSession.Playback
	if pb.URL == "" {
		return nil, fmt.Errorf("media %s: %w", mediaID, provider.ErrNotLive)
	}
	return &provider.PlaybackInfo{URL: pb.URL, Headers: playbackHeaders()}, nil
}

func (a *Adapter) bigInningStream(ctx context.Context) (string, error) {
	h := http.Header{}
	h.Set("User-Agent", androidUserAgent)

	var info struct {
		References struct {
			Video []struct {
				Fields struct {
					URL string `json:"url"`
				} `json:"fields"`
			} `json:"video"`
		} `json:"references"`
	}
	if err := a.client.GetJSON(ctx, a.endpoints.BigInning, h, &info); err != nil {
		return "", fmt.Errorf("big inning info: %w", err)
	}
	if len(info.References.Video) == 0 || info.References.Video[0].Fields.URL == "" {
		return "", fmt.Errorf("big inning: %w", provider.ErrNotLive)
	}

	a.mu.RLock()
	h.Set("Authorization", "Bearer "+a.state.AccessToken)
	a.mu.RUnlock()

	var stream struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := a.client.GetJSON(ctx, info.References.Video[0].Fields.URL, h, &stream); err != nil {
		return "", fmt.Errorf("big inning stream: %w", err)
	}
	if len(stream.Data) == 0 || stream.Data[0].Value == "" {
		return "", fmt.Errorf("big inning stream: %w", provider.ErrNotLive)
	}
	return stream.Data[0].Value, nil
}

func (a *Adapter) mlbNetworkStream(ctx context.Context) (string, error) {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	a.mu.RLock()
	h.Set("Authorization", "Bearer "+a.state.AccessToken)
	a.mu.RUnlock()

	var feed struct {
		URL string `json:"url"`
	}
	if err := a.client.GetJSON(ctx, a.endpoints.MLBNetwork, h, &feed); err != nil {
		return "", fmt.Errorf("mlb network feed: %w", err)
	}
	if feed.URL == "" {
		return "", fmt.Errorf("mlb network feed: %w", provider.ErrNotLive)
	}
	return feed.URL, nil
}

// collectionStream returns the first playable stream of a regional network's
// live collection.
func (a *Adapter) collectionStream(ctx context.Context, category string) (*provider.PlaybackInfo, error) {
	var data struct {
		ContentCollections []struct {
			Contents []struct {
				MediaID string `json:"mediaId"`
			} `json:"contents"`
		} `json:"contentCollections"`
	}
	err := a.graphQL(ctx, gqlRequest{
		OperationName: "contentCollections",
		Query:         contentCollectionsQuery,
		Variables: map[string]any{
			"categories": []string{category},
			"limit":      25,
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	if len(data.ContentCollections) == 0 {
		return nil, fmt.Errorf("%s: %w", category, provider.ErrNotLive)
	}

	for _, content := range data.ContentCollections[0].Contents {
		if content.MediaID == "" {
			continue
		}
		info, err := a.playback(ctx, content.MediaID)
		if err != nil {
			a.logger.Debug("collection stream unavailable",
				slog.String("category", category),
				slog.String("media_id", content.MediaID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := a.client.GetBytes(ctx, info.URL, info.Header()); err != nil {
			continue
		}
		return info, nil
	}
	return nil, fmt.Errorf("no playable stream for %s: %w", category, provider.ErrNotLive)
}

func (a *Adapter) load(ctx context.Context) error {
	var st State
	found, err := a.creds.Load(ctx, Key, &st)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if !found {
		return fmt.Errorf("loading credentials: %w", provider.ErrNoCredentials)
	}

	a.mu.Lock()
	// the playback session belongs to this process, not the stored document
	if st.SessionID == "" {
		st.SessionID = a.state.SessionID
	}
	a.state = st
	a.mu.Unlock()
	return nil
}
