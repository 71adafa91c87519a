// Package remote reads event listings and provider credential documents from
// the shared remote store. Two drivers exist: a Supabase/PostgREST client and
// a direct Postgres connection. Either can be wrapped in a Redis cache.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/leduong/EPlusTV/internal/config"
	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

// Driver names accepted in remote.driver.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
)

// ErrNotConfigured is returned when the remote store has no URL or DSN.
var ErrNotConfigured = errors.New("remote store not configured")

// Store is the remote source of listings and credential documents.
type Store interface {
	// Entries returns the listing published under a provider key, ordered by start.
	Entries(ctx context.Context, from string) ([]*models.Entry, error)
	// Provider returns the credential document for key, or nil if absent.
	Provider(ctx context.Context, key string) (*Provider, error)
	// UpsertProvider creates or replaces a credential document.
	UpsertProvider(ctx context.Context, p *Provider) error
	Ping(ctx context.Context) error
	Close() error
}

// Provider is a row of the remote providers table.
type Provider struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Entry is a row of the remote entries table.
type Entry struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Name        string    `json:"name"`
	Start       int64     `json:"start"`
	End         int64     `json:"end"`
	Duration    int64     `json:"duration"`
	Categories  []string  `json:"categories"`
	Feed        *string   `json:"feed"`
	Sport       *string   `json:"sport"`
	Network     string    `json:"network"`
	Image       string    `json:"image"`
	Channel     ChannelID `json:"channel"`
	Linear      *bool     `json:"linear"`
	Replay      *bool     `json:"replay"`
	URL         *string   `json:"url"`
	OriginalEnd *int64    `json:"originalEnd"`
}

// ChannelID decodes the remote channel column, stored as text but
// occasionally published as a number.
type ChannelID struct {
	Value *string
}

// UnmarshalJSON accepts null, a string or a number.
func (c *ChannelID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		c.Value = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		c.Value = &s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	s := n.String()
	c.Value = &s
	return nil
}

// MarshalJSON writes the channel as a string or null.
func (c ChannelID) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*c.Value)
}

// Int returns the channel as a number when it parses as one.
func (c ChannelID) Int() (int, bool) {
	if c.Value == nil {
		return 0, false
	}
	n, err := strconv.Atoi(*c.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToModel converts a remote row into a catalog entry. Remote channel
// assignments belong to whoever published them and are not carried over;
// local scheduling assigns its own.
func (e *Entry) ToModel() *models.Entry {
	return &models.Entry{
		ID:          e.ID,
		From:        e.From,
		Name:        e.Name,
		Start:       e.Start,
		End:         e.End,
		Duration:    e.Duration,
		Categories:  e.Categories,
		Feed:        e.Feed,
		Sport:       e.Sport,
		Network:     e.Network,
		Image:       e.Image,
		Linear:      e.Linear,
		Replay:      e.Replay,
		URL:         e.URL,
		OriginalEnd: e.OriginalEnd,
	}
}

func toModels(rows []Entry) []*models.Entry {
	entries := make([]*models.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToModel())
	}
	return entries
}

// New opens the store selected by cfg.Driver and wraps it in a Redis cache
// when cfg.RedisURL is set.
func New(ctx context.Context, cfg config.RemoteConfig, client *httpclient.Client) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverSupabase, "":
		store, err = NewSupabaseStore(cfg.URL, cfg.ServiceKey, client)
	case DriverPostgres:
		store, err = NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported remote driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL == "" {
		return store, nil
	}
	cached, err := NewCachedStore(store, cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cached, nil
}
