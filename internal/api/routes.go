package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/atlas/internal/config"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/storage/sqlite"
	"github.com/yegors/atlas/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router. records may be nil.
func NewRouter(pipeline *parser.Pipeline, sessions *SessionStore, records *sqlite.RecordStorage, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(pipeline, sessions, records, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSOrigins))
	router.Use(r.middleware.LimitBody)

	router.Route("/api/v1", func(router chi.Router) {
		// Stateless parsing
		router.Post("/parse", r.handler.Parse)
		router.Post("/readback", r.handler.Readback)

		// Sequence sessions
		router.Post("/sessions", r.handler.CreateSession)
		router.Get("/sessions/{id}", r.handler.GetSession)
		router.Delete("/sessions/{id}", r.handler.DeleteSession)
		router.Post("/sessions/{id}/turns", r.handler.ApplyTurn)

		// Stored parse records
		router.Get("/records", r.handler.GetRecentRecords)
		router.Get("/records/callsign/{callsign}", r.handler.GetRecordsByCallsign)
		router.Get("/records/time-range", r.handler.GetRecordsByTimeRange)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
