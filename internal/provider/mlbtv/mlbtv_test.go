package mlbtv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
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

type fakeMLB struct {
	t           *testing.T
	srv         *httptest.Server
	playbackErr string
	sessions    int
}

func (f *fakeMLB) graphql(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer tok", r.Header.Get("Authorization"))
	assert.Equal(f.t, clientName, r.Header.Get("X-Client-Name"))
	assert.Equal(f.t, clientVersion, r.Header.Get("X-Client-Version"))

	var req gqlRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	switch req.OperationName {
	case "initSession":
		f.sessions++
		device := req.Variables["device"].(map[string]any)
		assert.Equal(f.t, "dev-1", device["knownDeviceId"])
		io.WriteString(w, `{"data":{"initSession":{"sessionId":"sess-1","entitlements":[{"code":"MLBALL"}]}}}`)
	case "initPlaybackSession":
		assert.Equal(f.t, "sess-1", req.Variables["sessionId"])
		assert.Equal(f.t, "PLACEHOLDER", req.Variables["quality"])
		media := req.Variables["mediaId"].(string)
		if f.playbackErr != "" {
			io.WriteString(w, `{"errors":[{"message":"denied","extensions":{"code":"`+f.playbackErr+`"}}]}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"initPlaybackSession": map[string]any{"playback": map[string]any{
				"url": f.srv.URL + "/hls/" + media + ".m3u8",
			}},
		}})
	case "contentCollections":
		assert.Equal(f.t, []any{"SNY_LIVE"}, req.Variables["categories"])
		io.WriteString(w, `{"data":{"contentCollections":[{"contents":[{"mediaId":"dead"},{"mediaId":"sny-live"}]}]}}`)
	}
}

func newTestAdapter(t *testing.T, state State) (*Adapter, *fakeMLB, *memCreds) {
	t.Helper()
	f := &fakeMLB{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", f.graphql)
	mux.HandleFunc("/big-inning", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"references":{"video":[{"fields":{"url":"`+f.srv.URL+`/bi-stream"}}]}}`)
	})
	mux.HandleFunc("/bi-stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `{"data":[{"value":"https://cdn/big-inning.m3u8"}]}`)
	})
	mux.HandleFunc("/mlbn", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"url":"https://cdn/mlbn.m3u8"}`)
	})
	mux.HandleFunc("/hls/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hls/dead.m3u8" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "identity", r.Header.Get("accept-encoding"))
		io.WriteString(w, "#EXTM3U\n")
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	creds := &memCreds{docs: map[string][]byte{Key: raw}}

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	a := New(httpclient.New(cfg), creds, nil, nil).WithEndpoints(Endpoints{
		GraphQL:    f.srv.URL + "/graphql",
		BigInning:  f.srv.URL + "/big-inning",
		MLBNetwork: f.srv.URL + "/mlbn",
	})
	require.NoError(t, a.Initialize(context.Background()))
	return a, f, creds
}

func validState() State {
	return State{DeviceID: "dev-1", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
}

func TestGetEventData_Game(t *testing.T) {
	a, f, _ := newTestAdapter(t, validState())

	info, err := a.GetEventData(context.Background(), &models.Entry{ID: "media-123", From: Key})
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/hls/media-123.m3u8", info.URL)
	assert.Equal(t, "identity", info.Headers["accept-encoding"])
	assert.Equal(t, 1, f.sessions)
}

func TestGetEventData_Errors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"BLACKOUT", provider.ErrBlackout},
		{"NOT_ENTITLED", provider.ErrNotEntitled},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			a, f, _ := newTestAdapter(t, validState())
			f.playbackErr = tt.code

			_, err := a.GetEventData(context.Background(), &models.Entry{ID: "media-1"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetEventData_SpecialFeeds(t *testing.T) {
	a, f, _ := newTestAdapter(t, validState())
	ctx := context.Background()

	info, err := a.GetEventData(ctx, &models.Entry{ID: "Big Inning - 2026-04-01"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/big-inning.m3u8", info.URL)

	info, err = a.GetEventData(ctx, &models.Entry{ID: "MLB Network - 2026-04-01"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/mlbn.m3u8", info.URL)

	info, err = a.GetEventData(ctx, &models.Entry{ID: "SNY - 2026-04-01"})
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/hls/sny-live.m3u8", info.URL, "first playable content wins")
}

func TestInitialize_AssignsDeviceID(t *testing.T) {
	st := validState()
	st.DeviceID = ""
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	creds := &memCreds{docs: map[string][]byte{Key: raw}}

	a := New(httpclient.NewWithDefaults(), creds, nil, nil)
	require.NoError(t, a.Initialize(context.Background()))

	var saved State
	require.NoError(t, json.Unmarshal(creds.docs[Key], &saved))
	assert.NotEmpty(t, saved.DeviceID)
	assert.Equal(t, "tok", saved.AccessToken)
}

func TestCredentialsStale(t *testing.T) {
	now := time.Now()

	expired := validState()
	expired.ExpiresAt = now.Add(-time.Minute).UnixMilli()
	a, _, _ := newTestAdapter(t, expired)
	assert.True(t, a.CredentialsStale(now))

	jwtExpired := validState()
	jwtExpired.ExpiresAt = 0
	jwtExpired.AccessToken, _ = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	b := New(httpclient.NewWithDefaults(), &memCreds{docs: map[string][]byte{}}, nil, nil)
	b.state = jwtExpired
	assert.True(t, b.CredentialsStale(now))

	fresh := validState()
	c := New(httpclient.NewWithDefaults(), &memCreds{docs: map[string][]byte{}}, nil, nil)
	c.state = fresh
	assert.False(t, c.CredentialsStale(now))
}

func TestGetEventData_NoToken(t *testing.T) {
	st := validState()
	st.AccessToken = ""
	a, _, _ := newTestAdapter(t, st)

	_, err := a.GetEventData(context.Background(), &models.Entry{ID: "m"})
	require.ErrorIs(t, err, provider.ErrNoCredentials)
}
