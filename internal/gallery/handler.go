package gallery

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"vr-gallery/internal/auth"
)

// Handler exposes the video catalog endpoint.
type Handler struct {
	store *Store
	log   *slog.Logger
}

// NewHandler returns a Handler over the given Store.
func NewHandler(store *Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// ListVideos handles GET /videos.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.ListVideos(r.Context())
	if err != nil {
		h.log.Error("list videos failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot read video list"})
		return
	}
	if videos == nil {
		videos = []Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

// RequireSubscriber returns middleware that rejects authenticated users
// without an active subscription. It must run after auth.Middleware.
func RequireSubscriber(subs *Subscriptions, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			active, err := subs.Active(r.Context(), userID)
			if err != nil {
				log.Error("subscription check failed",
					slog.Int64("user_id", userID),
					slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			if !active {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "subscription required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
