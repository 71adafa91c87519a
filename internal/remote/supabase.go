package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

// SupabaseStore talks to the PostgREST endpoint of a Supabase project.
type SupabaseStore struct {
	baseURL string
	key     string
	client  *httpclient.Client
}

// NewSupabaseStore creates a store for the project at baseURL.
func NewSupabaseStore(baseURL, serviceKey string, client *httpclient.Client) (*SupabaseStore, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("%w: supabase url and service key are required", ErrNotConfigured)
	}
	if client == nil {
		client = httpclient.NewWithDefaults()
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceKey,
		client:  client,
	}, nil
}

func (s *SupabaseStore) headers() http.Header {
	h := http.Header{}
	h.Set("apikey", s.key)
	h.Set("Authorization", "Bearer "+s.key)
	h.Set("Accept", "application/json")
	return h
}

func (s *SupabaseStore) table(name string, query url.Values) string {
	return s.baseURL + "/rest/v1/" + name + "?" + query.Encode()
}

// Entries returns the listing published under from.
func (s *SupabaseStore) Entries(ctx context.Context, from string) ([]*models.Entry, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("from", "eq."+from)
	q.Set("order", "start.asc")

	var rows []Entry
	if err := s.client.GetJSON(ctx, s.table("entries", q), s.headers(), &rows); err != nil {
		return nil, fmt.Errorf("fetching %s entries: %w", from, err)
	}
	return toModels(rows), nil
}

// Provider returns the credential document for key.
func (s *SupabaseStore) Provider(ctx context.Context, key string) (*Provider, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("key", "eq."+key)

	var rows []Provider
	if err := s.client.GetJSON(ctx, s.table("providers", q), s.headers(), &rows); err != nil {
		return nil, fmt.Errorf("fetching provider %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertProvider creates or replaces a credential document.
func (s *SupabaseStore) UpsertProvider(ctx context.Context, p *Provider) error {
	q := url.Values{}
	q.Set("on_conflict", "key")

	h := s.headers()
	h.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	if err := s.client.PostJSON(ctx, s.table("providers", q), h, []*Provider{p}, nil); err != nil {
		return fmt.Errorf("upserting provider %s: %w", p.Key, err)
	}
	return nil
}

// Ping checks that the REST endpoint answers with the configured key.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "key")
	q.Set("limit", "1")

	var rows []Provider
	if err := s.client.GetJSON(ctx, s.table("providers", q), s.headers(), &rows); err != nil {
		return fmt.Errorf("pinging supabase: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client is shared.
func (s *SupabaseStore) Close() error {
	return nil
}
