package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	return cfg
}

func TestClient_Get(t *testing.T) {
	t.Run("sets user agent and custom headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "eplustv/test", r.Header.Get(HeaderUserAgent))
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		cfg := fastConfig()
		cfg.UserAgent = "eplustv/test"
		client := New(cfg)

		body, err := client.GetBytes(context.Background(), server.URL, http.Header{"Authorization": {"Bearer abc"}})
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("non-2xx becomes StatusError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("denied"))
		}))
		defer server.Close()

		_, err := New(fastConfig()).GetBytes(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsStatus(err, http.StatusForbidden))

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "denied", se.Body)
	})
}

func TestClient_Retries(t *testing.T) {
	t.Run("retries retryable status then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("done"))
		}))
		defer server.Close()

		body, err := New(fastConfig()).GetBytes(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, "done", string(body))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := New(fastConfig()).Get(context.Background(), server.URL, nil)
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, int32(DefaultRetryAttempts+1), calls.Load())
	})

	t.Run("resends POST body on retry", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"q":1}`, string(body))
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		var out struct {
			OK bool `json:"ok"`
		}
		err := New(fastConfig()).PostJSON(context.Background(), server.URL, nil, map[string]int{"q": 1}, &out)
		require.NoError(t, err)
		assert.True(t, out.OK)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		resp, err := New(fastConfig()).Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClient_Decompression(t *testing.T) {
	payload := []byte(`{"name":"decoded"}`)

	encoders := map[string]func(*bytes.Buffer){
		EncodingGzip: func(buf *bytes.Buffer) {
			gz := gzip.NewWriter(buf)
			gz.Write(payload)
			gz.Close()
		},
		EncodingBrotli: func(buf *bytes.Buffer) {
			br := brotli.NewWriter(buf)
			br.Write(payload)
			br.Close()
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var buf bytes.Buffer
				encode(&buf)
				w.Header().Set(HeaderContentEncoding, encoding)
				w.Write(buf.Bytes())
			}))
			defer server.Close()

			cfg := fastConfig()
			// keep the transport from handling gzip itself
			cfg.BaseClient = &http.Client{Transport: &http.Transport{DisableCompression: true}}

			var out struct {
				Name string `json:"name"`
			}
			require.NoError(t, New(cfg).GetJSON(context.Background(), server.URL, nil, &out))
			assert.Equal(t, "decoded", out.Name)
		})
	}
}

func TestClient_MaxResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 1024))
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxResponseSize = 100
	_, err := New(cfg).GetBytes(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_Cookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			return
		}
		c, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.EnableCookies = true
	client := New(cfg)

	_, err := client.GetBytes(context.Background(), server.URL+"/set", nil)
	require.NoError(t, err)

	body, err := client.GetBytes(context.Background(), server.URL+"/get", nil)
	require.NoError(t, err)
	assert.Equal(t, "s1", string(body))
}

func TestClient_CircuitBreakerIntegration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 2
	cfg.CircuitTimeout = time.Hour
	client := New(cfg)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, CircuitOpen.String(), client.Stats().State)

	_, err := client.Get(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorContains(t, err, ErrCircuitOpen.Error())
	assert.Equal(t, 2, client.Stats().ConsecutiveFailures)
}
