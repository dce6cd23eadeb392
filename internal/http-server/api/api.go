package api

import (
	"OmniHub/internal/config"
	"OmniHub/internal/http-server/handlers/errors"
	"OmniHub/internal/http-server/handlers/events"
	"OmniHub/internal/http-server/handlers/files"
	"OmniHub/internal/http-server/handlers/key"
	"OmniHub/internal/http-server/handlers/tasks"
	"OmniHub/internal/http-server/handlers/threads"
	"OmniHub/internal/http-server/handlers/webhooks"
	"OmniHub/internal/http-server/middleware/authenticate"
	"OmniHub/internal/http-server/middleware/timeout"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/ws"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"log/slog"
	"net"
	"net/http"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	events.Core
	files.Core
	webhooks.Core
	threads.Core
	tasks.Core
	key.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(15))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Route("/v1", func(v1 chi.Router) {
		// Provider callbacks authenticate by verify token and body
		// signature, not by bearer key.
		v1.Route("/webhooks", func(r chi.Router) {
			r.Get("/{channel}", webhooks.Verify(log, conf.Meta.VerifyToken))
			r.Post("/{channel}", webhooks.Receive(log, handler, conf.Meta.AppSecret))
		})

		// Attachment downloads authenticate by the signed query
		// parameters minted with the URL.
		v1.Get("/files/{id}", files.Download(log, handler, conf.Files.SignSecret))

		v1.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWs(hub, handler, log, w, r)
		})

		v1.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Use(authenticate.New(log, handler))

			r.Route("/channels", func(r chi.Router) {
				r.Post("/events", events.Ingest(log, handler))
			})
			r.Route("/threads", func(r chi.Router) {
				r.Get("/", threads.List(log, handler))
				r.Get("/{id}/messages", threads.Messages(log, handler))
			})
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", tasks.List(log, handler))
				r.Post("/{id}/close", tasks.Close(log, handler))
			})
			r.Route("/key", func(r chi.Router) {
				r.Post("/new", key.Generate(log, handler))
			})
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
