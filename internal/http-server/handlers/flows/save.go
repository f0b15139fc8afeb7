package flows

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"WhatsFlow/bot/flow"
	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

var validate = validator.New()

func Save(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var def flow.Definition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		if err := validate.Struct(&def); err != nil {
			logger.Error("flow failed validation", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Validation failed: %v", err)))
			return
		}
		if err := def.Validate(); err != nil {
			logger.Error("flow failed structural checks", sl.Err(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Validation failed: %v", err)))
			return
		}

		if err := handler.SaveFlow(r.Context(), &def); err != nil {
			logger.Error("save flow", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to save flow"))
			return
		}
		logger.With(
			slog.String("flow", def.Name),
		).Debug("flow saved")

		render.JSON(w, r, response.Ok(def.Name))
	}
}
