// Package espnplus implements the ESPN+ provider adapter.
package espnplus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/leduong/EPlusTV/internal/credentials"
	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/internal/remote"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

const (
	// Key is the provider key ESPN listings are published and scheduled under.
	Key = "espn"
	// StateKey is the credential document key.
	StateKey = "espnplus"

	scenario         = "browser~ssai"
	authShield       = "SHIELD"
	statusLive       = "LIVE"
	mediaServiceType = "application/vnd.media-service+json; version=2"
	origin           = "https://plus.espn.com"
)

// Endpoints are the upstream URLs the adapter talks to.
type Endpoints struct {
	SDKConfig string
	AppConfig string
	GraphAPI  string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		SDKConfig: "https://a.espncdn.com/connected-devices/app-configurations/espn-js-sdk-web-2.0.config.json",
		AppConfig: "https://bam-sdk-configs.bamgrid.com/bam-sdk/v2.0/espn-a9b93989/browser/v3.4/linux/chrome/prod.json",
		GraphAPI:  "https://watch.graph.api.espn.com/api",
	}
}

// Token is an OAuth style token issued by the BAM services.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Grant is an assertion grant.
type Grant struct {
	GrantType string `json:"grant_type"`
	Assertion string `json:"assertion"`
}

// Tokens are the account tokens from the identity service.
type Tokens struct {
	Token
	TTL        int64  `json:"ttl,omitempty"`
	RefreshTTL int64  `json:"refresh_ttl,omitempty"`
	SWID       string `json:"swid,omitempty"`
	IDToken    string `json:"id_token,omitempty"`
}

// State is the persisted credential document. Expiry fields are unix ms.
type State struct {
	Tokens              *Tokens `json:"tokens,omitempty"`
	DeviceGrant         *Grant  `json:"device_grant,omitempty"`
	DeviceTokenExchange *Token  `json:"device_token_exchange,omitempty"`
	DeviceRefreshToken  *Token  `json:"device_refresh_token,omitempty"`
	IDTokenGrant        *Grant  `json:"id_token_grant,omitempty"`
	AccountToken        *Token  `json:"account_token,omitempty"`

	DeviceTokenExchangeExpires int64 `json:"device_token_exchange_expires,omitempty"`
	DeviceRefreshTokenExpires  int64 `json:"device_refresh_token_expires,omitempty"`
	AccountTokenExpires        int64 `json:"account_token_expires,omitempty"`
}

// Adapter resolves ESPN+ airings into playable streams.
type Adapter struct {
	mu sync.RWMutex

	client    *httpclient.Client
	creds     credentials.Store
	listings  remote.Store
	endpoints Endpoints
	logger    *slog.Logger

	state     State
	apiKey    string
	appConfig json.RawMessage
}

// New creates an ESPN+ adapter.
func New(client *httpclient.Client, creds credentials.Store, listings remote.Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    client,
		creds:     creds,
		listings:  listings,
		endpoints: DefaultEndpoints(),
		logger:    observability.WithProvider(logger, StateKey),
	}
}

// WithEndpoints overrides the upstream URLs.
func (a *Adapter) WithEndpoints(e Endpoints) *Adapter {
	a.endpoints = e
	return a
}

// Key returns the provider key.
func (a *Adapter) Key() string { return Key }

// Initialize loads credentials, the GraphQL API key and the BAM app config.
func (a *Adapter) Initialize(ctx context.Context) error {
	if err := a.load(ctx); err != nil {
		return err
	}
	if err := a.ensureAPIKey(ctx); err != nil {
		return err
	}

	a.mu.RLock()
	loaded := a.appConfig != nil
	a.mu.RUnlock()
	if loaded {
		return nil
	}

	raw, err := a.client.GetBytes(ctx, a.endpoints.AppConfig, nil)
	if err != nil {
		return fmt.Errorf("loading app config: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("loading app config: invalid json")
	}
	a.mu.Lock()
	a.appConfig = raw
	a.mu.Unlock()
	return nil
}

// RefreshTokens reloads the credential document.
func (a *Adapter) RefreshTokens(ctx context.Context) error {
	return a.load(ctx)
}

// GetSchedule returns the published ESPN listing.
func (a *Adapter) GetSchedule(ctx context.Context) ([]models.Entry, error) {
	return provider.FetchListing(ctx, a.listings, Key, Key)
}

// CredentialsStale reports whether the account token has expired.
func (a *Adapter) CredentialsStale(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.AccountTokenExpires > 0 && now.UnixMilli() >= a.state.AccountTokenExpires
}

type airingResponse struct {
	Data struct {
		Airing *struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Source *struct {
				URL               string `json:"url"`
				AuthorizationType string `json:"authorizationType"`
			} `json:"source"`
		} `json:"airing"`
	} `json:"data"`
}

type mediaServiceResponse struct {
	Stream struct {
		Slide    string `json:"slide"`
		Complete string `json:"complete"`
	} `json:"stream"`
}

// GetEventData resolves the airing for entry.
func (a *Adapter) GetEventData(ctx context.Context, entry *models.Entry) (*provider.PlaybackInfo, error) {
	if a.CredentialsStale(time.Now()) {
		if err := a.load(ctx); err != nil {
			a.logger.Warn("reloading stale credentials failed", slog.String("error", err.Error()))
		}
	}
	if err := a.ensureAPIKey(ctx); err != nil {
		return nil, err
	}

	a.mu.RLock()
	apiKey := a.apiKey
	a.mu.RUnlock()

	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("query", airingQuery(entry.ID))

	var airing airingResponse
	if err := a.client.GetJSON(ctx, a.endpoints.GraphAPI+"?"+q.Encode(), nil, &airing); err != nil {
		return nil, fmt.Errorf("querying airing %s: %w", entry.ID, err)
	}

	info := airing.Data.Airing
	if info == nil || info.Status != statusLive || info.Source == nil || info.Source.URL == "" {
		return nil, fmt.Errorf("airing %s: %w", entry.ID, provider.ErrNotLive)
	}
	if info.Source.AuthorizationType == authShield {
		// TV-provider authenticated airings are outside an ESPN+ subscription
		return nil, fmt.Errorf("airing %s requires a TV provider: %w", entry.ID, provider.ErrNotEntitled)
	}

	a.mu.RLock()
	account := a.state.AccountToken
	a.mu.RUnlock()
	if account == nil || account.AccessToken == "" {
		return nil, fmt.Errorf("airing %s: %w", entry.ID, provider.ErrNoCredentials)
	}

	scenarioURL := strings.ReplaceAll(info.Source.URL, "{scenario}", scenario)

	h := http.Header{}
	h.Set("Accept", mediaServiceType)
	h.Set("Authorization", account.AccessToken)
	h.Set("Origin", origin)

	var media mediaServiceResponse
	if err := a.client.GetJSON(ctx, scenarioURL, h, &media); err != nil {
		return nil, fmt.Errorf("resolving airing %s: %w", entry.ID, classify(err))
	}

	uri := media.Stream.Slide
	if uri == "" {
		uri = media.Stream.Complete
	}
	if uri == "" {
		return nil, fmt.Errorf("airing %s has no stream: %w", entry.ID, provider.ErrNotLive)
	}

	return &provider.PlaybackInfo{
		URL:     uri,
		Headers: map[string]string{"Authorization": account.AccessToken},
	}, nil
}

func airingQuery(id string) string {
	return fmt.Sprintf(`{airing(id:%q,countryCode:"us",deviceType:SETTOP,tz:"Z") {id name status:type startDateTime endDateTime source(authorization: SHIELD) { url authorizationType } network { id name } feedName }}`, id)
}

// classify maps media-service refusals onto provider errors.
func classify(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	body := strings.ToLower(se.Body)
	switch {
	case strings.Contains(body, "blackout"):
		return fmt.Errorf("%w: %v", provider.ErrBlackout, err)
	case se.StatusCode == http.StatusUnauthorized, se.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", provider.ErrNotEntitled, err)
	default:
		return err
	}
}

func (a *Adapter) ensureAPIKey(ctx context.Context) error {
	a.mu.RLock()
	have := a.apiKey != ""
	a.mu.RUnlock()
	if have {
		return nil
	}

	var cfg struct {
		GraphQLAPI struct {
			APIKey string `json:"apiKey"`
		} `json:"graphqlapi"`
	}
	if err := a.client.GetJSON(ctx, a.endpoints.SDKConfig, nil, &cfg); err != nil {
		return fmt.Errorf("fetching graphql api key: %w", err)
	}
	if cfg.GraphQLAPI.APIKey == "" {
		return fmt.Errorf("fetching graphql api key: key missing from sdk config")
	}

	a.mu.Lock()
	a.apiKey = cfg.GraphQLAPI.APIKey
	a.mu.Unlock()
	return nil
}

func (a *Adapter) load(ctx context.Context) error {
	var st State
	found, err := a.creds.Load(ctx, StateKey, &st)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if !found {
		return fmt.Errorf("loading credentials: %w", provider.ErrNoCredentials)
	}

	a.mu.Lock()
	a.state = st
	a.mu.Unlock()

	if st.AccountTokenExpires > 0 {
		a.logger.Debug("credentials loaded",
			slog.Time("account_token_expires", time.UnixMilli(st.AccountTokenExpires)),
		)
	}
	return nil
}
