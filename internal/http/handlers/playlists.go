package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/output"
)

// Playlist and guide content types.
const (
	ContentTypeM3U   = "application/x-mpegurl"
	ContentTypeXML   = "application/xml"
	ContentTypePlain = "text/plain; charset=utf-8"
)

// PlaylistHandler serves the lineup playlists and XMLTV guides.
type PlaylistHandler struct {
	renderer *output.Renderer
	baseURL  string
}

// NewPlaylistHandler creates a playlist handler. baseURL may be empty.
func NewPlaylistHandler(renderer *output.Renderer, baseURL string) *PlaylistHandler {
	return &PlaylistHandler{
		renderer: renderer,
		baseURL:  baseURL,
	}
}

func (h *PlaylistHandler) logger(r *http.Request) *slog.Logger {
	return observability.WithComponent(observability.LoggerFromContext(r.Context()), "playlists")
}

// RegisterChiRoutes registers the playlist routes.
func (h *PlaylistHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/channels.m3u", h.handleLineup)
	router.Get("/linear-channels.m3u", h.handleLinearLineup)
	router.Get("/xmltv.xml", h.handleGuide)
	router.Get("/linear-xmltv.xml", h.handleLinearGuide)
	router.Get("/channels-iptv.m3u", h.handleIPTV)
	router.Get("/provider/{file}", h.handleProvider)
	router.Get("/teams.m3u", h.handleTeams)
	router.Get("/team/{file}", h.handleTeam)
}

func (h *PlaylistHandler) handleLineup(w http.ResponseWriter, r *http.Request) {
	base := BaseURL(h.baseURL, r)
	h.render(w, r, ContentTypeM3U, func(ctx context.Context, buf io.Writer) error {
		return h.renderer.WriteLineup(ctx, buf, base)
	})
}

func (h *PlaylistHandler) handleLinearLineup(w http.ResponseWriter, r *http.Request) {
	if !h.renderer.LinearEnabled() {
		NotFound(w)
		return
	}
	base := BaseURL(h.baseURL, r)
	h.render(w, r, ContentTypeM3U, func(_ context.Context, buf io.Writer) error {
		return h.renderer.WriteLinearLineup(buf, base)
	})
}

func (h *PlaylistHandler) handleGuide(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, ContentTypeXML, h.renderer.WriteGuide)
}

func (h *PlaylistHandler) handleLinearGuide(w http.ResponseWriter, r *http.Request) {
	if !h.renderer.LinearEnabled() {
		NotFound(w)
		return
	}
	h.render(w, r, ContentTypeXML, h.renderer.WriteLinearGuide)
}

func (h *PlaylistHandler) handleIPTV(w http.ResponseWriter, r *http.Request) {
	h.iptv(w, r, "")
}

func (h *PlaylistHandler) handleProvider(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".m3u")
	if !ok || key == "" {
		NotFound(w)
		return
	}
	h.iptv(w, r, strings.ToLower(key))
}

func (h *PlaylistHandler) iptv(w http.ResponseWriter, r *http.Request, providerKey string) {
	base := BaseURL(h.baseURL, r)
	h.render(w, r, ContentTypePlain, func(ctx context.Context, buf io.Writer) error {
		n, err := h.renderer.WriteIPTV(ctx, buf, base, providerKey)
		if err == nil {
			h.logger(r).Debug("iptv listing rendered",
				slog.String("provider", providerKey),
				slog.Int("entries", n))
		}
		return err
	})
}

func (h *PlaylistHandler) handleTeams(w http.ResponseWriter, r *http.Request) {
	base := BaseURL(h.baseURL, r)
	h.teams(w, r, "", func(ctx context.Context, buf io.Writer) (int, error) {
		return h.renderer.WriteTeams(ctx, buf, base)
	})
}

func (h *PlaylistHandler) handleTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".m3u")
	if !ok || team == "" {
		NotFound(w)
		return
	}
	base := BaseURL(h.baseURL, r)
	h.teams(w, r, team, func(ctx context.Context, buf io.Writer) (int, error) {
		return h.renderer.WriteTeam(ctx, buf, base, team)
	})
}

// teams renders a team listing and answers 404 when no scheduled event
// names a team.
func (h *PlaylistHandler) teams(w http.ResponseWriter, r *http.Request, team string, fn func(context.Context, io.Writer) (int, error)) {
	var buf bytes.Buffer
	n, err := fn(r.Context(), &buf)
	if err != nil {
		observability.WithError(h.logger(r), err).Error("rendering team listing failed",
			slog.String("path", r.URL.Path))
		http.Error(w, "failed to render playlist", http.StatusInternalServerError)
		return
	}
	h.logger(r).Debug("team listing rendered",
		slog.String("team", team),
		slog.Int("entries", n))
	if n == 0 {
		NotFound(w)
		return
	}
	w.Header().Set("Content-Type", ContentTypePlain)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// render buffers the whole document so a failure midway still yields a
// clean error response.
func (h *PlaylistHandler) render(w http.ResponseWriter, r *http.Request, contentType string, fn func(context.Context, io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(r.Context(), &buf); err != nil {
		observability.WithError(h.logger(r), err).Error("rendering playlist failed",
			slog.String("path", r.URL.Path))
		http.Error(w, "failed to render playlist", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
