package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduong/EPlusTV/pkg/httpclient"
)

func testClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.RetryDelay = time.Millisecond
	return httpclient.New(cfg)
}

const entriesJSON = `[
  {"id":"e1","from":"espn","name":"Game One","start":1000,"end":5000,"duration":4,
   "categories":["Basketball","NBA"],"feed":null,"sport":"Basketball","network":"ESPN+",
   "image":"http://img/1.png","channel":"7","linear":null,"replay":null,"url":null,"originalEnd":null},
  {"id":"e2","from":"espn","name":"Game Two","start":2000,"end":6000,"duration":4,
   "categories":[],"feed":"Home","sport":null,"network":"ESPN+","image":"",
   "channel":null,"linear":true,"replay":false,"url":"http://watch","originalEnd":7000}
]`

func TestSupabaseStore_Entries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/entries", r.URL.Path)
		assert.Equal(t, "eq.espn", r.URL.Query().Get("from"))
		assert.Equal(t, "start.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "svc-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, entriesJSON)
	}))
	defer server.Close()

	store, err := NewSupabaseStore(server.URL+"/", "svc-key", testClient())
	require.NoError(t, err)

	entries, err := store.Entries(context.Background(), "espn")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, []string{"Basketball", "NBA"}, entries[0].Categories)
	assert.Nil(t, entries[0].Channel, "remote channel assignments are not carried over")
	assert.True(t, entries[1].IsLinear())
	require.NotNil(t, entries[1].OriginalEnd)
	assert.Equal(t, int64(7000), *entries[1].OriginalEnd)
}

func TestSupabaseStore_Providers(t *testing.T) {
	stored := map[string]json.RawMessage{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/providers", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			key := r.URL.Query().Get("key")
			var rows []Provider
			if data, ok := stored[key[len("eq."):]]; ok {
				rows = append(rows, Provider{Key: key[len("eq."):], Data: data})
			}
			json.NewEncoder(w).Encode(rows)
		case http.MethodPost:
			assert.Equal(t, "key", r.URL.Query().Get("on_conflict"))
			assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
			var rows []Provider
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
			for _, p := range rows {
				stored[p.Key] = p.Data
			}
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()

	store, err := NewSupabaseStore(server.URL, "svc-key", testClient())
	require.NoError(t, err)
	ctx := context.Background()

	p, err := store.Provider(ctx, "mlbtv")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, store.UpsertProvider(ctx, &Provider{Key: "mlbtv", Data: json.RawMessage(`{"device_id":"d1"}`)}))

	p, err = store.Provider(ctx, "mlbtv")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.JSONEq(t, `{"device_id":"d1"}`, string(p.Data))
}

func TestSupabaseStore_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store, err := NewSupabaseStore(server.URL, "bad", testClient())
	require.NoError(t, err)

	_, err = store.Entries(context.Background(), "espn")
	require.Error(t, err)
	assert.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
}

func TestNewSupabaseStore_RequiresConfig(t *testing.T) {
	_, err := NewSupabaseStore("", "key", nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewSupabaseStore("http://x", "", nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
