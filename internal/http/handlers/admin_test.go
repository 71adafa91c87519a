package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/scheduler"
	"github.com/leduong/EPlusTV/internal/tuner"
)

func newTestAPI(t *testing.T) (chi.Router, huma.API) {
	t.Helper()
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("EPlusTV Test", "1.0.0"))
	return router, api
}

func do(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type fakeSchedule struct {
	settings *models.ScheduleSettings
	runs     []*models.ScheduleRun
	err      error
	resets   int
	rebuilds int
}

func (f *fakeSchedule) Settings(context.Context) (*models.ScheduleSettings, error) {
	return f.settings, f.err
}

func (f *fakeSchedule) UpdateSettings(_ context.Context, in *models.ScheduleSettings) (*models.ScheduleRun, error) {
	if in.StartChannel == 100 {
		return nil, models.ErrValidation{Field: "start_channel", Message: "overlaps linear channels"}
	}
	f.settings = in
	return &models.ScheduleRun{Trigger: models.TriggerSettings}, nil
}

func (f *fakeSchedule) ResetSchedule(context.Context) (*models.ScheduleRun, error) {
	f.resets++
	return &models.ScheduleRun{Trigger: models.TriggerReset, Scheduled: 4}, f.err
}

func (f *fakeSchedule) Rebuild(context.Context) (*models.ScheduleRun, error) {
	f.rebuilds++
	return &models.ScheduleRun{Trigger: models.TriggerRebuild}, f.err
}

func (f *fakeSchedule) Runs(_ context.Context, limit int) ([]*models.ScheduleRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeSchedule) Preview(context.Context) (*scheduler.Preview, error) {
	return &scheduler.Preview{Rows: []scheduler.PreviewRow{{EntryID: "e1", Channel: 1}}, Channels: 1}, nil
}

func TestScheduleHandler(t *testing.T) {
	svc := &fakeSchedule{
		settings: &models.ScheduleSettings{StartChannel: 1, NumChannels: 200},
		runs: []*models.ScheduleRun{
			{Trigger: models.TriggerTimer}, {Trigger: models.TriggerStartup}, {Trigger: models.TriggerReset},
		},
	}
	router, api := newTestAPI(t)
	NewScheduleHandler(svc).Register(api)

	t.Run("get settings", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/v1/schedule/settings", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body ScheduleSettingsBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 200, body.NumChannels)
	})

	t.Run("update settings", func(t *testing.T) {
		rec := do(router, http.MethodPut, "/api/v1/schedule/settings", ScheduleSettingsBody{
			StartChannel: 10, NumChannels: 20, ExcludeTitles: []string{"replay"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 10, svc.settings.StartChannel)
		assert.Equal(t, []string{"replay"}, svc.settings.ExcludeTitles)
	})

	t.Run("invalid pool size is rejected", func(t *testing.T) {
		rec := do(router, http.MethodPut, "/api/v1/schedule/settings", ScheduleSettingsBody{StartChannel: 1, NumChannels: 0})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, 10, svc.settings.StartChannel)
	})

	t.Run("service validation error", func(t *testing.T) {
		rec := do(router, http.MethodPut, "/api/v1/schedule/settings", ScheduleSettingsBody{StartChannel: 100, NumChannels: 5})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "overlaps linear channels")
	})

	t.Run("reset and rebuild", func(t *testing.T) {
		rec := do(router, http.MethodPost, "/api/v1/schedule/reset", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"scheduled":4`)

		rec = do(router, http.MethodPost, "/api/v1/schedule/rebuild", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, svc.resets)
		assert.Equal(t, 1, svc.rebuilds)
	})

	t.Run("runs honour limit", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/v1/schedule/runs?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Runs []models.ScheduleRun `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Runs, 2)
	})

	t.Run("preview", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/v1/schedule/preview", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"entry_id":"e1"`)
	})

	t.Run("service failure", func(t *testing.T) {
		svc.err = errors.New("database is locked")
		defer func() { svc.err = nil }()
		rec := do(router, http.MethodPost, "/api/v1/schedule/reset", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestEntryHandler(t *testing.T) {
	repo := newEntryRepo(t)
	seedEntries(t, repo)
	router, api := newTestAPI(t)
	NewEntryHandler(repo).Register(api)

	decode := func(rec *httptest.ResponseRecorder) []models.Entry {
		var body struct {
			Entries []models.Entry `json:"entries"`
			Total   int            `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, len(body.Entries), body.Total)
		return body.Entries
	}

	rec := do(router, http.MethodGet, "/api/v1/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(rec), 3)

	rec = do(router, http.MethodGet, "/api/v1/entries?scheduled=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(rec), 2)

	rec = do(router, http.MethodGet, "/api/v1/entries?provider=ESPN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(rec), 2)

	rec = do(router, http.MethodGet, "/api/v1/entries/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mets at Phillies")

	rec = do(router, http.MethodGet, "/api/v1/entries/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeSessions struct {
	infos []tuner.Info
}

func (f *fakeSessions) List() []tuner.Info { return f.infos }

func (f *fakeSessions) Remove(id string) bool {
	for i, info := range f.infos {
		if info.ID == id {
			f.infos = append(f.infos[:i], f.infos[i+1:]...)
			return true
		}
	}
	return false
}

func TestSessionHandler(t *testing.T) {
	sessions := &fakeSessions{infos: []tuner.Info{{ID: "3", Channel: 3, EntryName: "Game"}}}
	router, api := newTestAPI(t)
	NewSessionHandler(sessions).Register(api)

	rec := do(router, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entry_name":"Game"`)

	rec = do(router, http.MethodDelete, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sessions.infos)

	rec = do(router, http.MethodDelete, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions":[]`)
}

type fakeProviders struct {
	stale     map[string]bool
	refreshed int
}

func (f *fakeProviders) Keys() []string { return []string{"espnplus", "mlbtv"} }

func (f *fakeProviders) Stale(key string, _ time.Time) bool { return f.stale[key] }

func (f *fakeProviders) RefreshAll(context.Context) {
	f.refreshed++
	f.stale = map[string]bool{}
}

func TestProviderHandler(t *testing.T) {
	providers := &fakeProviders{stale: map[string]bool{"mlbtv": true}}
	router, api := newTestAPI(t)
	NewProviderHandler(providers, providers).Register(api)

	rec := do(router, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"key":"mlbtv","stale":true}`)

	rec = do(router, http.MethodPost, "/api/v1/providers/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, providers.refreshed)
	assert.Contains(t, rec.Body.String(), `{"key":"mlbtv","stale":false}`)
}
