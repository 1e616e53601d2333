package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	eventsHandler "github.com/zhouzirui/person-api/backend/internal/handler/events"
	personHandler "github.com/zhouzirui/person-api/backend/internal/handler/person"
	middlewarePkg "github.com/zhouzirui/person-api/backend/internal/middleware"
	personModel "github.com/zhouzirui/person-api/backend/internal/model/person"
	eventsService "github.com/zhouzirui/person-api/backend/internal/service/events"
	"github.com/zhouzirui/person-api/backend/pkg/utils"
)

const (
	greeting     = "Hello World!"
	notFoundBody = "404 | Not Found!"
)

// NewRouter wires HTTP routes to core services. broker may be nil, in which
// case mutations are not published and the event feed is not mounted.
func NewRouter(persons personModel.Store, broker *eventsService.Broker, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middlewarePkg.EchoRequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondText(w, http.StatusOK, greeting)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"persons": persons.Len(),
		})
	})

	// A nil *Broker must not become a non-nil Publisher.
	var publisher eventsService.Publisher
	if broker != nil {
		publisher = broker
	}
	personHandler.New(persons, publisher, logger).RegisterRoutes(r)

	if broker != nil {
		eventsHandler.New(broker, logger).RegisterRoutes(r)
	}

	return r
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondText(w, http.StatusNotFound, notFoundBody)
}
