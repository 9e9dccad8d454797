package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/query"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
)

const (
	logMsgRequestHandled = "handled request"
	logMsgRequestFailed  = "request failed"
	logMsgRateLimited    = "request rate limited"

	logAttrMethod     = "method"
	logAttrRoute      = "route"
	logAttrStatus     = "status"
	logAttrRemoteAddr = "remote_addr"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"

	paramEntityType = "entityType"
	paramEntityID   = "entityId"
	paramEventID    = "eventId"
	paramVersion    = "version"

	defaultRequestTimeout = 30 * time.Second

	// uuidPattern restricts the changes route to event ids, so /api/events/{entityType}/changes
	// still lists the entity whose id is "changes".
	uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`
)

// ErrNilDependency is returned by NewServer if the registry, the tracker or the query engine is nil.
var ErrNilDependency = errors.New("httpapi dependency must not be nil")

// SchemaRegistry is the part of *schemaregistry.Registry the HTTP surface uses.
type SchemaRegistry interface {
	AddSchema(ctx context.Context, entityType string, version int, schemaDefinition string) (eventstore.SchemaVersion, error)
	GetSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error)
	GetLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error)
	ListSchemas(ctx context.Context, entityType string) ([]eventstore.SchemaVersion, error)
}

// EventTracker is the part of *tracker.EventTracker the HTTP surface uses.
type EventTracker interface {
	TrackEventWithResult(ctx context.Context, request tracker.TrackEventRequest) (eventstore.BusinessEvent, error)
}

// EventQueries is the part of *query.Engine the HTTP surface uses.
type EventQueries interface {
	GetEntityEvents(ctx context.Context, entityType, entityID string, fields []string) ([]eventstore.EventResponse, error)
	SearchEvents(ctx context.Context, request eventstore.SearchRequest) ([]eventstore.EventResponse, error)
	GetAllEvents(ctx context.Context) ([]eventstore.EventResponse, error)
	GetEventChanges(ctx context.Context, eventID uuid.UUID) (query.EventChanges, error)
}

// Server routes HTTP requests to the registry, the tracker and the query engine.
type Server struct {
	registry       SchemaRegistry
	tracker        EventTracker
	queries        EventQueries
	logger         eventstore.Logger
	metrics        *Metrics
	limiter        *ClientLimiter
	requestTimeout time.Duration
}

// Option defines a functional option for configuring Server.
type Option func(*Server) error

// WithLogger sets the logger for the Server.
//
// Debug level: handled requests
// Warn level: rate limited clients
// Error level: requests answered with an error.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics records request counts and latencies with the given Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) error {
		s.metrics = metrics
		return nil
	}
}

// WithRateLimit limits every client to rps requests per second with bursts of up to burst requests.
// A non-positive rps disables rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) error {
		if rps <= 0 {
			s.limiter = nil
			return nil
		}

		if burst < 1 {
			return errors.New("rate limit burst must be at least 1")
		}

		s.limiter = NewClientLimiter(rps, burst)

		return nil
	}
}

// WithRequestTimeout sets the deadline of each request context. The default is 30 seconds.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout <= 0 {
			return errors.New("request timeout must be positive")
		}

		s.requestTimeout = timeout

		return nil
	}
}

// NewServer creates a new Server.
func NewServer(registry SchemaRegistry, eventTracker EventTracker, queries EventQueries, options ...Option) (*Server, error) {
	if registry == nil || eventTracker == nil || queries == nil {
		return nil, ErrNilDependency
	}

	s := &Server{
		registry:       registry,
		tracker:        eventTracker,
		queries:        queries,
		requestTimeout: defaultRequestTimeout,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Handler returns the chi router with all routes and middlewares.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(s.rateLimit)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/health", s.health)

	r.Route("/schemas", func(r chi.Router) {
		r.Post("/", s.addSchema)
		r.Get("/{entityType}", s.listSchemas)
		r.Get("/{entityType}/latest", s.latestSchema)
		r.Get("/{entityType}/versions/{version}", s.schemaVersion)
	})

	r.Get("/events", s.allEvents)

	r.Route("/api/events", func(r chi.Router) {
		r.Post("/", s.trackEvent)
		r.Get("/search", s.searchEvents)
		r.Get("/{eventId:"+uuidPattern+"}/changes", s.eventChanges)
		r.Get("/{entityType}/{entityId}", s.entityEvents)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
