package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/internal/presentation/graph"
	"github.com/vinculobrasil/flowbot/internal/runtime"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/observability"
	"github.com/vinculobrasil/flowbot/pkg/ports"
	"github.com/vinculobrasil/flowbot/pkg/runner"
)

// Server exposes a Conversation over HTTP.
type Server struct {
	conv     ports.Conversation
	streams  *StreamManager
	logger   *slog.Logger
	metrics  *observability.Metrics
	version  string
	validate bool
	router   chi.Router
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and stream logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and mounts GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithRequestValidation toggles validation of /v1 requests against the
// OpenAPI document. It is on by default.
func WithRequestValidation(enabled bool) Option {
	return func(s *Server) {
		s.validate = enabled
	}
}

// NewHandler builds the HTTP handler for conv.
func NewHandler(conv ports.Conversation, opts ...Option) (http.Handler, error) {
	return NewServer(conv, opts...)
}

// NewServer builds a Server for conv, loading and validating the embedded
// OpenAPI document.
func NewServer(conv ports.Conversation, opts ...Option) (*Server, error) {
	s := &Server{
		conv:     conv,
		logger:   logging.NewNop(),
		version:  "dev",
		validate: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/health", s.health)
	r.Get("/info", s.info)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(Spec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	var validator func(http.Handler) http.Handler
	if s.validate {
		if validator, err = requestValidator(doc); err != nil {
			return nil, err
		}
	}
	r.Route("/v1", func(r chi.Router) {
		if validator != nil {
			r.Use(validator)
		}
		r.Get("/flows", s.listFlows)
		r.Get("/flows/{flowID}/graph", s.getGraph)
		r.Post("/flows/{flowID}/sessions/{sessionID}/messages", s.sendMessage)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{sessionID}", s.getSession)
		r.Delete("/sessions/{sessionID}", s.deleteSession)
		r.Get("/sessions/{sessionID}/events", s.subscribeSession)
	})

	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Streams exposes the SSE fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

type messageRequest struct {
	Text    string         `json:"text"`
	Contact domain.Contact `json:"contact"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	text, err := runner.SanitizeInput(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg := domain.Inbound{
		FlowID:    chi.URLParam(r, "flowID"),
		SessionID: chi.URLParam(r, "sessionID"),
		Contact:   req.Contact,
		Text:      text,
	}
	res, err := s.conv.Handle(r.Context(), msg)
	if res != nil {
		s.streams.Publish(res.Diff)
	}
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("turn failed",
			"flow_id", msg.FlowID,
			"session_id", msg.SessionID,
			"status", status,
			"err", err,
		)
		var te *runtime.TurnError
		if res != nil && errors.As(err, &te) {
			writeJSON(w, status, res)
			return
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.conv.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.conv.Sessions(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	ids, err := s.conv.Flows(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"flows": ids})
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.conv.Flow(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if r.URL.Query().Get("format") != "mermaid" {
		writeJSON(w, http.StatusOK, g)
		return
	}

	var overlay *graph.GraphOverlay
	if id := r.URL.Query().Get("session"); id != "" {
		sess, err := s.conv.Session(r.Context(), id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		overlay = graph.OverlayFromSession(sess)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(g, overlay)))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "flowbot",
		"version": s.version,
	})
}

// instrument records one observation per request, labelled by route pattern
// so path parameters do not explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var cfg *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfg):
		return http.StatusUnprocessableEntity
	case errors.Is(err, runner.ErrInputTooLarge), errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTurnCanceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Flowbot API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
