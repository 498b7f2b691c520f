package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/orchestrator"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// RouterOptions carries the dependencies of the HTTP API.
type RouterOptions struct {
	Registry     *session.Registry
	Orchestrator *orchestrator.Orchestrator
	Store        *fstore.Store
	Logger       *logging.Logger
	CORSOrigins  []string
}

// NewRouter assembles the API route tree.
func NewRouter(opts RouterOptions) http.Handler {
	sessions := NewSessionHandler(opts.Registry, opts.Orchestrator, opts.Store, opts.Logger)
	files := NewFileHandler(opts.Registry, opts.Store)
	events := NewEventsHandler(opts.Registry, opts.Logger)

	r := chi.NewRouter()

	r.Use(CORS(opts.CORSOrigins))
	r.Use(RequestID)
	r.Use(Logger(opts.Logger))
	r.Use(Recovery(opts.Logger))

	r.Get("/health", Health)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", sessions.Create)
		r.Get("/", sessions.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sessions.Get)
			r.Delete("/", sessions.Delete)
			r.Post("/cancel", sessions.Cancel)
			r.Post("/retry", sessions.Retry)
			r.Get("/events", events.Stream)
			r.Get("/archive", files.Archive)
			r.Get("/files", files.List)
			r.Get("/file", files.Get)
			r.Put("/file", files.Put)
		})
	})

	return r
}
