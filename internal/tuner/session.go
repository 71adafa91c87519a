package tuner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

// EntryLookup finds the entry airing on a channel.
type EntryLookup interface {
	Covering(ctx context.Context, channel int, at time.Time) (*models.Entry, error)
}

// Resolver turns an entry into upstream playback through its provider.
type Resolver interface {
	Resolve(ctx context.Context, entry *models.Entry) (*provider.PlaybackInfo, error)
	Stale(key string, now time.Time) bool
}

type upstreamRef struct {
	url    string
	header http.Header
}

// Session is the live proxy state for one channel. It is created on the
// first request for the channel and lives in memory only.
type Session struct {
	id      string
	channel int
	baseURL string

	entries  EntryLookup
	resolver Resolver
	client   *httpclient.Client
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	entry     *models.Entry
	playback  *provider.PlaybackInfo
	playlist  string
	variants  []string
	tokens    map[string]upstreamRef
	heartbeat time.Time
	createdAt time.Time
}

func newSession(id, baseURL string, entries EntryLookup, resolver Resolver, client *httpclient.Client, logger *slog.Logger, now func() time.Time) *Session {
	return &Session{
		id:       id,
		baseURL:  baseURL,
		entries:  entries,
		resolver: resolver,
		client:   client,
		logger:   observability.WithChannel(logger, id),
		now:      now,
		tokens:   make(map[string]upstreamRef),
	}
}

// ID returns the channel id the session serves.
func (s *Session) ID() string { return s.id }

// Playlist returns the rewritten master playlist.
func (s *Session) Playlist() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlist
}

// Heartbeat returns the time of the last access.
func (s *Session) Heartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeat
}

// Touch records an access at t. Older times are ignored.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.heartbeat) {
		s.heartbeat = t
	}
}

// complete reports whether Launch finished and a heartbeat was recorded.
func (s *Session) complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlist != "" && !s.heartbeat.IsZero()
}

func (s *Session) chunklistPrefix() string {
	return s.baseURL + "/chunklist/" + s.id
}

func (s *Session) segmentPrefix() string {
	return s.baseURL + "/channels/" + s.id
}

// Launch finds the airing entry, resolves playback and rewrites the master
// playlist.
func (s *Session) Launch(ctx context.Context) error {
	channel, err := strconv.Atoi(s.id)
	if err != nil {
		return fmt.Errorf("%w: invalid channel %q", ErrNotScheduled, s.id)
	}
	now := s.now()

	entry, err := s.entries.Covering(ctx, channel, now)
	if err != nil {
		return fmt.Errorf("%w: looking up channel %d: %w", ErrUpstreamUnavailable, channel, err)
	}
	if entry == nil {
		return fmt.Errorf("%w: %d", ErrNotScheduled, channel)
	}
	logger := s.logger.With(slog.String("entry_id", entry.ID), slog.String("provider", entry.From))

	playback, err := s.resolve(ctx, entry, logger)
	if err != nil {
		return err
	}

	text, variants, err := s.loadMaster(ctx, playback)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.channel = channel
	s.entry = entry
	s.playback = playback
	s.playlist = text
	s.variants = variants
	s.createdAt = now
	if now.After(s.heartbeat) {
		s.heartbeat = now
	}
	s.mu.Unlock()

	logger.Info("tuner session launched", slog.Int("variants", len(variants)))
	return nil
}

// resolve calls the provider once more if the first attempt fails.
func (s *Session) resolve(ctx context.Context, entry *models.Entry, logger *slog.Logger) (*provider.PlaybackInfo, error) {
	playback, err := s.resolver.Resolve(ctx, entry)
	if err != nil {
		observability.WithError(logger, err).Warn("resolving playback failed, retrying")
		playback, err = s.resolver.Resolve(ctx, entry)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolving playback for %s: %w", ErrUpstreamUnavailable, entry.ID, err)
	}
	if playback == nil || playback.URL == "" {
		return nil, fmt.Errorf("%w: provider %s returned no playback url", ErrUpstreamUnavailable, entry.From)
	}
	return playback, nil
}

// loadMaster fetches the playback master and rewrites it to local chunklist
// paths. A media playlist served directly becomes variant 0.
func (s *Session) loadMaster(ctx context.Context, playback *provider.PlaybackInfo) (string, []string, error) {
	body, final, err := s.fetch(ctx, playback.URL, playback.Header())
	if err != nil {
		return "", nil, fmt.Errorf("%w: fetching master playlist: %w", ErrUpstreamUnavailable, err)
	}

	master, err := isMaster(body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if !master {
		return singleVariantMaster(s.chunklistPrefix()), []string{final.String()}, nil
	}

	text, variants, err := rewriteMaster(body, final, s.chunklistPrefix())
	if err != nil {
		return "", nil, fmt.Errorf("%w: rewriting master playlist: %w", ErrUpstreamUnavailable, err)
	}
	return text, variants, nil
}

// CacheChunklist fetches one variant playlist and rewrites its segment, key
// and init URIs to local tokens. Only the tokens from the latest call are
// valid afterwards, across all chunklists of the session: a player polling
// a demuxed audio rendition alongside the video variant invalidates the
// segment tokens of whichever chunklist it fetched first.
//
// Stale credentials resolve playback again. A changed master URL re-fetches
// the master and replaces the variant table.
func (s *Session) CacheChunklist(ctx context.Context, chunklistID string) (string, error) {
	n, err := strconv.Atoi(chunklistID)

	s.mu.RLock()
	entry, playback, variants := s.entry, s.playback, s.variants
	s.mu.RUnlock()

	if entry == nil {
		return "", fmt.Errorf("%w: session %s not launched", ErrUpstreamUnavailable, s.id)
	}
	if err != nil || n < 0 || n >= len(variants) {
		return "", fmt.Errorf("%w: %s", ErrUnknownChunklist, chunklistID)
	}

	if s.resolver.Stale(entry.From, s.now()) {
		s.logger.Debug("credentials stale, resolving playback again", slog.String("provider", entry.From))
		fresh, err := s.resolve(ctx, entry, s.logger)
		if err != nil {
			return "", err
		}

		var text string
		if fresh.URL != playback.URL {
			text, variants, err = s.loadMaster(ctx, fresh)
			if err != nil {
				return "", err
			}
			if n >= len(variants) {
				return "", fmt.Errorf("%w: %s", ErrUnknownChunklist, chunklistID)
			}
		}
		playback = fresh

		s.mu.Lock()
		s.playback = fresh
		if text != "" {
			s.playlist = text
			s.variants = variants
		}
		s.mu.Unlock()
	}

	header := playback.Header()
	body, final, err := s.fetch(ctx, variants[n], header)
	if err != nil {
		return "", fmt.Errorf("%w: fetching chunklist %d: %w", ErrUpstreamUnavailable, n, err)
	}

	text, found, err := rewriteMedia(body, final, s.segmentPrefix())
	if err != nil {
		return "", fmt.Errorf("%w: rewriting chunklist %d: %w", ErrUpstreamUnavailable, n, err)
	}

	tokens := make(map[string]upstreamRef, len(found))
	for token, u := range found {
		tokens[token] = upstreamRef{url: u, header: header}
	}

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
	return text, nil
}

// Segment is an upstream segment or key body being relayed.
type Segment struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// GetSegmentOrKey opens the upstream body for token. ext selects the
// content type; the bytes are passed through untouched.
func (s *Session) GetSegmentOrKey(ctx context.Context, token, ext string) (*Segment, error) {
	s.mu.RLock()
	ref, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}

	resp, err := s.client.Get(ctx, ref.url, ref.header)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrUpstreamUnavailable, token, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrUpstreamUnavailable, token,
			&httpclient.StatusError{Method: http.MethodGet, URL: ref.url, StatusCode: resp.StatusCode})
	}

	return &Segment{
		Body:          resp.Body,
		ContentType:   ContentType(ext),
		ContentLength: resp.ContentLength,
	}, nil
}

// fetch GETs a playlist and returns its body with the URL it was finally
// served from, so relative references resolve against redirects.
func (s *Session) fetch(ctx context.Context, rawURL string, header http.Header) ([]byte, *url.URL, error) {
	resp, err := s.client.Get(ctx, rawURL, header)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, &httpclient.StatusError{
			Method:     http.MethodGet,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	final := resp.Request.URL
	if final == nil {
		final, err = url.Parse(rawURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", rawURL, err)
		}
	}
	return body, final, nil
}

// Info is a read-only view of a session.
type Info struct {
	ID        string    `json:"id"`
	Channel   int       `json:"channel"`
	EntryID   string    `json:"entry_id"`
	EntryName string    `json:"entry_name"`
	Provider  string    `json:"provider"`
	Variants  int       `json:"variants"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	Heartbeat time.Time `json:"heartbeat"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:        s.id,
		Channel:   s.channel,
		Variants:  len(s.variants),
		Tokens:    len(s.tokens),
		CreatedAt: s.createdAt,
		Heartbeat: s.heartbeat,
	}
	if s.entry != nil {
		info.EntryID = s.entry.ID
		info.EntryName = s.entry.Name
		info.Provider = s.entry.From
	}
	return info
}
