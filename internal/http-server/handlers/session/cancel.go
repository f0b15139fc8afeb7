package session

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WhatsFlow/bot/flow"
	"WhatsFlow/internal/lib/api/response"
	"WhatsFlow/internal/lib/sl"
)

type CancelRequest struct {
	Phone   string `json:"phone"`
	Account string `json:"account"`
}

// Cancel terminates a contact's Active session from the admin side.
func Cancel(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if req.Phone == "" {
			render.JSON(w, r, response.Error("Phone required"))
			return
		}

		active, err := handler.Active(r.Context(), req.Phone, req.Account)
		if err != nil {
			logger.Error("load session", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to load session"))
			return
		}
		if active == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("No active session"))
			return
		}

		won, err := handler.Terminate(r.Context(), active, flow.StatusCancelled)
		if err != nil {
			logger.Error("cancel session", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to cancel session"))
			return
		}
		if !won {
			render.JSON(w, r, response.Error("Session already finished"))
			return
		}
		logger.With(
			slog.String("phone", req.Phone),
		).Debug("session cancelled")

		render.JSON(w, r, response.Ok(req.Phone))
	}
}
