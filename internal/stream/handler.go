package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// contentIDRe limits ContentIDs to the external platform's identifier
// alphabet; anything else never reaches the filesystem namespace.
var contentIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Handler exposes the delivery gateway HTTP endpoints using go-chi.
type Handler struct {
	mgr    *Manager
	direct DirectStreamer
	log    *slog.Logger
}

// NewHandler returns a Handler over the given Manager. direct may be nil to
// disable the progressive endpoint.
func NewHandler(mgr *Manager, direct DirectStreamer, log *slog.Logger) *Handler {
	return &Handler{mgr: mgr, direct: direct, log: log}
}

// Routes mounts the delivery endpoints on r under /stream/{contentID}.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/stream/{contentID}", func(r chi.Router) {
		r.Get("/playlist", h.GetPlaylist)
		r.Get("/direct", h.GetDirect)
		r.Post("/stop", h.StopSession)
		r.Get("/{segment}", h.GetSegment)
	})
}

// GetPlaylist handles GET /stream/{contentID}/playlist. It blocks until the
// session is ready (bounded) and returns the current playlist bytes.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := contentIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.mgr.Playlist(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionFailed):
			h.log.Warn("playlist unavailable",
				slog.String("content_id", string(id)),
				slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "stream unavailable")
		case errors.Is(err, r.Context().Err()):
			// Client went away; nothing useful to write.
			writeError(w, http.StatusGatewayTimeout, "timed out")
		default:
			h.log.Error("playlist failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// GetSegment handles GET /stream/{contentID}/{segment}. Segments are
// ephemeral; an absent name is a plain 404.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := contentIDParam(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "segment")

	f, err := h.mgr.Segment(id, name)
	if err != nil {
		if errors.Is(err, ErrSegmentNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("segment failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.log.Debug("segment copy interrupted", slog.String("error", err.Error()))
	}
}

// StopSession handles POST /stream/{contentID}/stop.
// Body: { "stopped": true } when a live session existed.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id, ok := contentIDParam(w, r)
	if !ok {
		return
	}

	stopped := h.mgr.Stop(id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"stopped": stopped})
}

// GetDirect handles GET /stream/{contentID}/direct: a raw progressive
// transcode piped to the client with chunked transfer. Client disconnect
// terminates the pipeline.
func (h *Handler) GetDirect(w http.ResponseWriter, r *http.Request) {
	id, ok := contentIDParam(w, r)
	if !ok {
		return
	}
	if h.direct == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.log.Info("direct stream start", slog.String("content_id", string(id)))

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-cache")

	err := h.direct.Stream(r.Context(), id, w)
	switch {
	case err == nil:
		h.log.Info("direct stream complete", slog.String("content_id", string(id)))
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		h.log.Info("direct stream client disconnected", slog.String("content_id", string(id)))
	case errors.Is(err, ErrSpawn):
		h.log.Error("direct stream spawn failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "stream unavailable")
	default:
		// Headers are out the door; all we can do is log and cut the body.
		h.log.Warn("direct stream failed",
			slog.String("content_id", string(id)),
			slog.String("error", err.Error()))
	}
}

func contentIDParam(w http.ResponseWriter, r *http.Request) (ContentID, bool) {
	id := chi.URLParam(r, "contentID")
	if !contentIDRe.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return "", false
	}
	return ContentID(id), true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
