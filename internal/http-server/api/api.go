package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WhatsFlow/bot/whatsapp"
	"WhatsFlow/internal/config"
	"WhatsFlow/internal/http-server/handlers/errors"
	"WhatsFlow/internal/http-server/handlers/flows"
	"WhatsFlow/internal/http-server/handlers/key"
	"WhatsFlow/internal/http-server/handlers/keyword"
	"WhatsFlow/internal/http-server/handlers/session"
	"WhatsFlow/internal/http-server/middleware/authenticate"
	"WhatsFlow/internal/http-server/middleware/timeout"
	"WhatsFlow/internal/lib/sl"
	"WhatsFlow/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	flows.Core
	keyword.Core
	session.Core
	key.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler, waBot *whatsapp.WhatsAppBot, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	// Meta calls the webhook unauthenticated; signature verification
	// happens inside the handler.
	if waBot != nil {
		router.Get("/webhook/whatsapp", waBot.HandleWebhookVerification)
		router.Post("/webhook/whatsapp", waBot.HandleWebhook)
	}

	if hub != nil {
		router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWs(hub, handler, log, w, r)
		})
	}

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authenticate.New(log, handler))

		v1.Route("/flows", func(r chi.Router) {
			r.Get("/", flows.List(log, handler))
			r.Get("/{name}", flows.Get(log, handler))
			r.Post("/", flows.Save(log, handler))
			r.Delete("/{name}", flows.Delete(log, handler))
		})
		v1.Route("/keywords", func(r chi.Router) {
			r.Get("/", keyword.List(log, handler))
			r.Post("/", keyword.Save(log, handler))
			r.Delete("/{id}", keyword.Delete(log, handler))
		})
		v1.Route("/sessions", func(r chi.Router) {
			r.Get("/", session.List(log, handler))
			r.Post("/cancel", session.Cancel(log, handler))
		})
		v1.Route("/key", func(r chi.Router) {
			r.Post("/new", key.Generate(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
