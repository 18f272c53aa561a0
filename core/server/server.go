// Package server exposes the observer over HTTP: the live ingestion and query
// boundary plus the stateless trace verification endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/davidahmann/observer/core/gateway"
	"github.com/davidahmann/observer/core/journal"
	"github.com/davidahmann/observer/core/observer"
)

const (
	ServiceName            = "observer-server"
	DefaultMaxRequestBytes = 8 << 20
)

// SnapshotSource fetches one decoded gateway snapshot page for /tail.
// *gateway.Client satisfies it.
type SnapshotSource interface {
	FetchRaw(ctx context.Context, query gateway.Query) (any, error)
}

// ArchiveReader serves archived rows for /threads/{thread_id}/archive.
// *journal.Journal satisfies it.
type ArchiveReader interface {
	Count(ctx context.Context) (int, error)
	Thread(ctx context.Context, threadID string) ([]journal.Entry, error)
}

type Config struct {
	Observer        *observer.Observer
	Gateway         SnapshotSource
	Archive         ArchiveReader
	TailLimit       int
	MaxRequestBytes int64
	Logger          *slog.Logger
	Tracer          trace.Tracer
}

type handler struct {
	observer        *observer.Observer
	gateway         SnapshotSource
	archive         ArchiveReader
	tailLimit       int
	maxRequestBytes int64
	logger          *slog.Logger
	tracer          trace.Tracer
}

var endpoints = []string{
	"GET /healthz",
	"POST /project",
	"POST /explain",
	"POST /summary",
	"GET /tail?stream_id=default&since=0",
	"GET /status",
	"GET /threads",
	"GET /threads/{thread_id}",
	"GET /threads/{thread_id}/archive",
	"GET /signals",
	"POST /ingest",
}

func NewHandler(config Config) (http.Handler, error) {
	if config.Observer == nil {
		return nil, fmt.Errorf("missing observer")
	}
	h := &handler{
		observer:        config.Observer,
		gateway:         config.Gateway,
		archive:         config.Archive,
		tailLimit:       config.TailLimit,
		maxRequestBytes: config.MaxRequestBytes,
		logger:          config.Logger,
		tracer:          config.Tracer,
	}
	if h.tailLimit <= 0 {
		h.tailLimit = gateway.DefaultLimit
	}
	if h.maxRequestBytes <= 0 {
		h.maxRequestBytes = DefaultMaxRequestBytes
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "server")
	if h.tracer == nil {
		h.tracer = noop.NewTracerProvider().Tracer("server")
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.traceRequests)
	router.Use(h.limitRequestBody)
	router.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusNotFound, "not_found", "not found")
	})
	router.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	router.Get("/", h.handleRoot)
	router.Get("/healthz", h.handleHealth)
	router.Post("/project", h.handleProject)
	router.Post("/explain", h.handleExplain)
	router.Post("/summary", h.handleSummary)
	router.Get("/tail", h.handleTail)

	router.Get("/status", h.handleStatus)
	router.Get("/threads", h.handleThreads)
	router.Get("/threads/{thread_id}", h.handleThread)
	router.Get("/threads/{thread_id}/archive", h.handleThreadArchive)
	router.Get("/signals", h.handleSignals)
	router.Post("/ingest", h.handleIngest)
	return router, nil
}

// NewHTTPServer applies the listener timeouts used by `observer serve`.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *handler) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx, span := h.tracer.Start(request.Context(), "http.request", trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		wrapped := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(wrapped, request.WithContext(ctx))

		route := request.URL.Path
		if routeContext := chi.RouteContext(request.Context()); routeContext != nil && routeContext.RoutePattern() != "" {
			route = routeContext.RoutePattern()
		}
		span.SetName(request.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", wrapped.Status()),
		)
		h.logger.DebugContext(ctx, "request",
			"method", request.Method,
			"route", route,
			"status", wrapped.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	})
}

func (h *handler) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Body != nil {
			request.Body = http.MaxBytesReader(writer, request.Body, h.maxRequestBytes)
		}
		next.ServeHTTP(writer, request)
	})
}

func (h *handler) handleRoot(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   ServiceName,
		"endpoints": endpoints,
	})
}

func (h *handler) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]string{"status": "ok"})
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func trimmedMessage(err error) string {
	return strings.TrimSpace(err.Error())
}
