package keyword

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
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

		id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
		if err != nil {
			render.JSON(w, r, response.Error("Invalid rule id"))
			return
		}

		if err := handler.DeleteRule(r.Context(), id); err != nil {
			logger.Error("delete rule", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to delete rule"))
			return
		}
		logger.With(
			slog.String("rule_id", id.Hex()),
		).Debug("rule deleted")

		render.JSON(w, r, response.Ok(id.Hex()))
	}
}
