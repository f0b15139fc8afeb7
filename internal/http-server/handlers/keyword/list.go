package keyword

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
		mod := sl.Module("http.handlers.keyword")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("rule storage not available")
			render.JSON(w, r, response.Error("rule storage not available"))
			return
		}

		rules, err := handler.ListAllRules(r.Context())
		if err != nil {
			logger.Error("list rules", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to list rules"))
			return
		}

		render.JSON(w, r, response.Ok(rules))
	}
}
