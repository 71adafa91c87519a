package espnplus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/pkg/httpclient"
)

type memCreds struct {
	docs map[string][]byte
}

func (m *memCreds) Load(_ context.Context, key string, v any) (bool, error) {
	data, ok := m.docs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *memCreds) Save(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.docs[key] = data
	return nil
}

type upstream struct {
	status     string
	authType   string
	mediaCode  int
	mediaBody  string
	airingHits int
}

func (u *upstream) handler(t *testing.T, base func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sdk.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"graphqlapi":{"apiKey":"gql-key"}}`)
	})
	mux.HandleFunc("/app.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"services":{}}`)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		u.airingHits++
		assert.Equal(t, "gql-key", r.URL.Query().Get("apiKey"))
		assert.Contains(t, r.URL.Query().Get("query"), `airing(id:"evt-1"`)
		resp := map[string]any{"data": map[string]any{"airing": map[string]any{
			"id":     "evt-1",
			"status": u.status,
			"source": map[string]any{
				"url":               base() + "/media/{scenario}",
				"authorizationType": u.authType,
			},
		}}}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media/browser~ssai", r.URL.Path)
		assert.Equal(t, mediaServiceType, r.Header.Get("Accept"))
		assert.Equal(t, "acct-token", r.Header.Get("Authorization"))
		assert.Equal(t, origin, r.Header.Get("Origin"))
		if u.mediaCode != 0 {
			w.WriteHeader(u.mediaCode)
		}
		io.WriteString(w, u.mediaBody)
	})
	return mux
}

func newTestAdapter(t *testing.T, u *upstream, expires int64) (*Adapter, *httptest.Server) {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(u.handler(t, func() string { return srv.URL }))
	t.Cleanup(srv.Close)

	state := State{
		AccountToken:        &Token{AccessToken: "acct-token"},
		AccountTokenExpires: expires,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	a := New(httpclient.New(cfg), &memCreds{docs: map[string][]byte{StateKey: raw}}, nil, nil).
		WithEndpoints(Endpoints{
			SDKConfig: srv.URL + "/sdk.json",
			AppConfig: srv.URL + "/app.json",
			GraphAPI:  srv.URL + "/api",
		})
	require.NoError(t, a.Initialize(context.Background()))
	return a, srv
}

func TestGetEventData(t *testing.T) {
	entry := &models.Entry{ID: "evt-1", From: Key}
	future := time.Now().Add(time.Hour).UnixMilli()

	t.Run("prefers slide stream", func(t *testing.T) {
		u := &upstream{status: "LIVE", mediaBody: `{"stream":{"slide":"https://cdn/slide.m3u8","complete":"https://cdn/full.m3u8"}}`}
		a, _ := newTestAdapter(t, u, future)

		info, err := a.GetEventData(context.Background(), entry)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/slide.m3u8", info.URL)
		assert.Equal(t, map[string]string{"Authorization": "acct-token"}, info.Headers)
	})

	t.Run("falls back to complete stream", func(t *testing.T) {
		u := &upstream{status: "LIVE", mediaBody: `{"stream":{"complete":"https://cdn/full.m3u8"}}`}
		a, _ := newTestAdapter(t, u, future)

		info, err := a.GetEventData(context.Background(), entry)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/full.m3u8", info.URL)
	})

	t.Run("upcoming airing is not live", func(t *testing.T) {
		u := &upstream{status: "UPCOMING"}
		a, _ := newTestAdapter(t, u, future)

		_, err := a.GetEventData(context.Background(), entry)
		require.ErrorIs(t, err, provider.ErrNotLive)
	})

	t.Run("shield airing is not entitled", func(t *testing.T) {
		u := &upstream{status: "LIVE", authType: authShield}
		a, _ := newTestAdapter(t, u, future)

		_, err := a.GetEventData(context.Background(), entry)
		require.ErrorIs(t, err, provider.ErrNotEntitled)
	})

	t.Run("blackout refusal", func(t *testing.T) {
		u := &upstream{status: "LIVE", mediaCode: http.StatusForbidden, mediaBody: `{"errors":[{"code":"blackout"}]}`}
		a, _ := newTestAdapter(t, u, future)

		_, err := a.GetEventData(context.Background(), entry)
		require.ErrorIs(t, err, provider.ErrBlackout)
	})

	t.Run("forbidden refusal", func(t *testing.T) {
		u := &upstream{status: "LIVE", mediaCode: http.StatusForbidden, mediaBody: `{}`}
		a, _ := newTestAdapter(t, u, future)

		_, err := a.GetEventData(context.Background(), entry)
		require.ErrorIs(t, err, provider.ErrNotEntitled)
	})
}

func TestCredentialsStale(t *testing.T) {
	u := &upstream{status: "LIVE"}
	past := time.Now().Add(-time.Minute).UnixMilli()
	a, _ := newTestAdapter(t, u, past)

	assert.True(t, a.CredentialsStale(time.Now()))
	assert.False(t, a.CredentialsStale(time.UnixMilli(past).Add(-time.Second)))
}

func TestInitialize_WithoutCredentials(t *testing.T) {
	a := New(httpclient.NewWithDefaults(), &memCreds{docs: map[string][]byte{}}, nil, nil)
	err := a.Initialize(context.Background())
	require.ErrorIs(t, err, provider.ErrNoCredentials)
}

func TestAiringQuery(t *testing.T) {
	q := airingQuery(`abc"1`)
	assert.True(t, strings.HasPrefix(q, `{airing(id:"abc\"1"`))
	assert.Contains(t, q, "source(authorization: SHIELD)")
}

func TestRefreshTokens_ReloadsStoredState(t *testing.T) {
	u := &upstream{status: "LIVE"}
	a, _ := newTestAdapter(t, u, time.Now().Add(-time.Minute).UnixMilli())
	require.True(t, a.CredentialsStale(time.Now()))

	creds := a.creds.(*memCreds)
	require.NoError(t, creds.Save(context.Background(), StateKey, State{
		AccountToken:        &Token{AccessToken: "rotated-token"},
		AccountTokenExpires: time.Now().Add(time.Hour).UnixMilli(),
	}))

	require.NoError(t, a.RefreshTokens(context.Background()))
	assert.False(t, a.CredentialsStale(time.Now()))
	assert.Equal(t, "rotated-token", a.state.AccountToken.AccessToken)
	assert.Zero(t, u.airingHits)
}
