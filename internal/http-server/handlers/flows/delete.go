package flows

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.flows")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("flow storage not available")
			render.JSON(w, r, response.Error("flow storage not available"))
			return
		}

		name := chi.URLParam(r, "name")
		if name == "" {
			render.JSON(w, r, response.Error("Flow name required"))
			return
		}

		if err := handler.DeleteFlow(r.Context(), name); err != nil {
			logger.Error("delete flow", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to delete flow"))
			return
		}
		logger.With(
			slog.String("flow", name),
		).Debug("flow deleted")

		render.JSON(w, r, response.Ok(name))
	}
}
