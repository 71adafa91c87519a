// Package handlers provides the tuner routes and admin API handlers.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leduong/EPlusTV/internal/metrics"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/tuner"
)

// TunerErrorHeader carries the error players show when a channel fails.
const (
	TunerErrorHeader = "X-Tuner-Error"
	TunerErrorValue  = "EPlusTV: Error getting content"
)

// NotFound writes the tuner 404 response.
func NotFound(w http.ResponseWriter) {
	w.Header().Set(TunerErrorHeader, TunerErrorValue)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, "404 not found")
}

// BaseURL returns the configured public URL, or one derived from the
// request's X-Forwarded-Proto and Host.
func BaseURL(configured string, r *http.Request) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + r.Host
}

// TunerHandler serves the HLS proxy routes.
type TunerHandler struct {
	registry *tuner.Registry
	baseURL  string
	now      func() time.Time
}

// NewTunerHandler creates a tuner handler. baseURL may be empty.
func NewTunerHandler(registry *tuner.Registry, baseURL string) *TunerHandler {
	return &TunerHandler{
		registry: registry,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// logger returns the request-scoped logger for channel id.
func (h *TunerHandler) logger(r *http.Request, id string) *slog.Logger {
	logger := observability.WithComponent(observability.LoggerFromContext(r.Context()), "tuner-http")
	return observability.WithChannel(logger, id)
}

// RegisterChiRoutes registers the tuner routes as raw chi handlers.
func (h *TunerHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/", func(w http.ResponseWriter, r *http.Request) { NotFound(w) })
	router.Get("/channels/{file}", h.handleMaster)
	router.Get("/chunklist/{id}/{file}", h.handleChunklist)
	router.Get("/channels/{id}/{file}", h.handleSegment)
}

func (h *TunerHandler) handleMaster(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".m3u8")
	if !ok || !isChannelID(id) {
		NotFound(w)
		return
	}
	logger := h.logger(r, id)

	s, err := h.registry.GetOrLaunch(r.Context(), id, BaseURL(h.baseURL, r))
	if err != nil {
		if errors.Is(err, tuner.ErrNotScheduled) {
			logger.Debug("no entry scheduled")
		} else {
			observability.WithError(logger, err).Warn("launching channel failed")
		}
		NotFound(w)
		return
	}
	s.Touch(h.now())

	w.Header().Set("Content-Type", tuner.ContentTypePlaylist)
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, s.Playlist())
}

func (h *TunerHandler) handleChunklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunklistID, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".m3u8")
	if !ok {
		NotFound(w)
		return
	}

	s, found := h.registry.Get(id)
	if !found {
		NotFound(w)
		return
	}

	text, err := s.CacheChunklist(r.Context(), chunklistID)
	if err != nil {
		h.fail(r, id, err)
		NotFound(w)
		return
	}
	s.Touch(h.now())

	w.Header().Set("Content-Type", tuner.ContentTypePlaylist)
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, text)
}

func (h *TunerHandler) handleSegment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	file := chi.URLParam(r, "file")
	ext := strings.TrimPrefix(path.Ext(file), ".")
	if !tuner.ValidExt(ext) {
		NotFound(w)
		return
	}
	token := strings.TrimSuffix(file, "."+ext)

	s, found := h.registry.Get(id)
	if !found {
		NotFound(w)
		return
	}

	seg, err := s.GetSegmentOrKey(r.Context(), token, ext)
	if err != nil {
		h.fail(r, id, err)
		NotFound(w)
		return
	}
	defer seg.Body.Close()
	s.Touch(h.now())

	w.Header().Set("Content-Type", seg.ContentType)
	if seg.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(seg.ContentLength, 10))
	}
	n, err := io.Copy(w, seg.Body)
	metrics.SegmentBytes.WithLabelValues(ext).Add(float64(n))
	if err != nil && r.Context().Err() == nil {
		observability.WithError(h.logger(r, id), err).Debug("relaying segment interrupted")
	}
}

// fail tears the session down unless the request itself was at fault.
func (h *TunerHandler) fail(r *http.Request, id string, err error) {
	logger := h.logger(r, id)
	if errors.Is(err, tuner.ErrUnknownToken) || errors.Is(err, tuner.ErrUnknownChunklist) {
		logger.Debug("stale request", slog.String("reason", err.Error()))
		return
	}
	observability.WithError(logger, err).Warn("upstream failed, removing session")
	h.registry.Remove(id)
}

func isChannelID(id string) bool {
	n, err := strconv.Atoi(id)
	return err == nil && n > 0
}
