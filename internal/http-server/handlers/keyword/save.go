package keyword

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"WhatsFlow/entity"
	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

var validate = validator.New()

func Save(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var rule entity.KeywordRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		if err := validate.Struct(&rule); err != nil {
			logger.Error("rule failed validation", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Validation failed: %v", err)))
			return
		}

		if err := handler.SaveRule(r.Context(), &rule); err != nil {
			logger.Error("save rule", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to save rule"))
			return
		}
		logger.With(
			slog.String("rule", rule.Name),
		).Debug("rule saved")

		render.JSON(w, r, response.Ok(rule.Name))
	}
}
