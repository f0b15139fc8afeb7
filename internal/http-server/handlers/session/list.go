package session

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

const defaultLimit = 100

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.session")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("session storage not available")
			render.JSON(w, r, response.Error("session storage not available"))
			return
		}

		limit := int64(defaultLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		sessions, err := handler.ListSessions(r.Context(), limit)
		if err != nil {
			logger.Error("list sessions", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to list sessions"))
			return
		}

		render.JSON(w, r, response.Ok(sessions))
	}
}
