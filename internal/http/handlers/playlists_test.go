package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/output"
	"github.com/leduong/EPlusTV/internal/repository"
	"github.com/leduong/EPlusTV/internal/scheduler"
)

type testLineup struct {
	linear bool
}

func (l *testLineup) Settings(context.Context) (*models.ScheduleSettings, error) {
	return &models.ScheduleSettings{StartChannel: 1, NumChannels: 3}, nil
}

func (l *testLineup) Linear() (scheduler.LinearChannels, int, bool) {
	return scheduler.DefaultLinearChannels, 100, l.linear
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Entry{}))
	return db
}

func newEntryRepo(t *testing.T) repository.EntryRepository {
	t.Helper()
	return repository.NewEntryRepository(openTestDB(t))
}

func seedEntries(t *testing.T, repo repository.EntryRepository) {
	t.Helper()
	ctx := context.Background()
	start := time.Now().Add(time.Hour)
	_, err := repo.InsertIfAbsent(ctx, []*models.Entry{
		{ID: "g1", From: "espn", Name: "Duke vs UNC", Start: start.UnixMilli(), End: start.Add(2 * time.Hour).UnixMilli()},
		{ID: "m1", From: "mlbtv", Name: "Mets at Phillies", Start: start.UnixMilli(), End: start.Add(3 * time.Hour).UnixMilli()},
		{ID: "u1", From: "espn", Name: "Unplaced", Start: start.UnixMilli(), End: start.Add(time.Hour).UnixMilli()},
	})
	require.NoError(t, err)
	require.NoError(t, repo.AssignChannels(ctx, map[string]int{"g1": 1, "m1": 2}))
}

func newPlaylistRouter(t *testing.T, linear bool, baseURL string) chi.Router {
	t.Helper()
	repo := newEntryRepo(t)
	seedEntries(t, repo)

	router := chi.NewRouter()
	renderer := output.NewRenderer(repo, &testLineup{linear: linear})
	NewPlaylistHandler(renderer, baseURL).RegisterChiRoutes(router)
	return router
}

func TestPlaylistHandler_Lineup(t *testing.T) {
	router := newPlaylistRouter(t, false, "")

	rec := get(router, "/channels.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeM3U, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#EXTM3U"))
	assert.Contains(t, rec.Body.String(), "https://example.com/channels/3.m3u8")
}

func TestPlaylistHandler_ConfiguredBaseURL(t *testing.T) {
	router := newPlaylistRouter(t, false, "http://tuner.lan:8000")

	rec := get(router, "/channels.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://tuner.lan:8000/channels/1.m3u8")
	assert.NotContains(t, rec.Body.String(), "example.com")
}

func TestPlaylistHandler_Guide(t *testing.T) {
	router := newPlaylistRouter(t, false, "")

	rec := get(router, "/xmltv.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeXML, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Duke vs UNC")
	assert.NotContains(t, rec.Body.String(), "Unplaced")
}

func TestPlaylistHandler_IPTV(t *testing.T) {
	router := newPlaylistRouter(t, false, "")

	rec := get(router, "/channels-iptv.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypePlain, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Duke vs UNC")
	assert.Contains(t, rec.Body.String(), "Mets at Phillies")

	rec = get(router, "/provider/mlbtv.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mets at Phillies")
	assert.NotContains(t, rec.Body.String(), "Duke")

	assertTunerNotFound(t, get(router, "/provider/mlbtv"))
}

func TestPlaylistHandler_LinearDisabled(t *testing.T) {
	router := newPlaylistRouter(t, false, "")

	assertTunerNotFound(t, get(router, "/linear-channels.m3u"))
	assertTunerNotFound(t, get(router, "/linear-xmltv.xml"))
}

func TestPlaylistHandler_LinearEnabled(t *testing.T) {
	router := newPlaylistRouter(t, true, "")

	rec := get(router, "/linear-channels.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.com/channels/100.m3u8")

	rec = get(router, "/linear-xmltv.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "espn1.eplustv")
}

func TestPlaylistHandler_Teams(t *testing.T) {
	router := newPlaylistRouter(t, false, "")

	rec := get(router, "/teams.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypePlain, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `group-title="UNC"`)
	assert.Contains(t, rec.Body.String(), `group-title="Phillies"`)
	assert.NotContains(t, rec.Body.String(), "Unplaced")

	rec = get(router, "/team/mets.m3u")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mets at Phillies")
	assert.Contains(t, rec.Body.String(), "https://example.com/channels/2.m3u8")
	assert.NotContains(t, rec.Body.String(), "Duke")

	assertTunerNotFound(t, get(router, "/team/yankees.m3u"))
	assertTunerNotFound(t, get(router, "/team/mets"))
}

func TestPlaylistHandler_TeamsEmpty(t *testing.T) {
	router := chi.NewRouter()
	renderer := output.NewRenderer(newEntryRepo(t), &testLineup{})
	NewPlaylistHandler(renderer, "").RegisterChiRoutes(router)

	assertTunerNotFound(t, get(router, "/teams.m3u"))
}
