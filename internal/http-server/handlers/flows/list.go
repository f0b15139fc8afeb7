package flows

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

func List(log *slog.Logger, handler Core) http.HandlerFunc {
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

		defs, err := handler.ListFlows(r.Context())
		if err != nil {
			logger.Error("list flows", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to list flows"))
			return
		}

		render.JSON(w, r, response.Ok(defs))
	}
}
