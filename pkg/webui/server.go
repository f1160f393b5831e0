// Package webui serves skillhub's HTTP API: the marketplace and admin
// catalog, submissions, review actions, pipeline snapshots and live
// Server-Sent Event streams.
package webui

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/reviewlog"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
)

// DefaultHeartbeat is how often idle event streams send a keep-alive comment.
const DefaultHeartbeat = 15 * time.Second

// Importer fetches remote skill documents.
type Importer interface {
	Import(ctx context.Context, raw string) (*importer.Result, error)
}

// ReviewLog answers audit trail queries.
type ReviewLog interface {
	History(ctx context.Context, skillID string) ([]reviewlog.Entry, error)
	Recent(ctx context.Context, limit int) ([]reviewlog.Entry, error)
	Count(ctx context.Context) (int, error)
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Validate checks the listener settings.
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Addr is the host:port the server listens on.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the HTTP API over one registry.
type Server struct {
	router    *mux.Router
	config    *ServerConfig
	registry  *registry.Registry
	stages    *pipeline.Table
	importer  Importer
	reviews   ReviewLog
	sched     scheduler.Scheduler
	heartbeat time.Duration
	startedAt time.Time
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithStages sets the stage table pipeline runs are built from.
func WithStages(t *pipeline.Table) Option {
	return func(s *Server) error {
		if t == nil {
			return errors.New("stage table must not be nil")
		}
		s.stages = t
		return nil
	}
}

// WithImporter enables POST /api/import.
func WithImporter(im Importer) Option {
	return func(s *Server) error {
		s.importer = im
		return nil
	}
}

// WithReviewLog enables the history and activity endpoints.
func WithReviewLog(l ReviewLog) Option {
	return func(s *Server) error {
		s.reviews = l
		return nil
	}
}

// WithScheduler sets the clock pipeline runs use.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Server) error {
		if sched == nil {
			return errors.New("scheduler must not be nil")
		}
		s.sched = sched
		return nil
	}
}

// WithHeartbeat sets the keep-alive interval of event streams. Zero
// disables keep-alives.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) error {
		if d < 0 {
			return errors.Errorf("heartbeat must not be negative, got %s", d)
		}
		s.heartbeat = d
		return nil
	}
}

// NewServer creates a server for reg.
func NewServer(config *ServerConfig, reg *registry.Registry, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	if reg == nil {
		return nil, errors.New("registry must not be nil")
	}

	s := &Server{
		router:    mux.NewRouter(),
		config:    config,
		registry:  reg,
		stages:    pipeline.NewTable(pipeline.DefaultStages()),
		sched:     scheduler.Real(),
		heartbeat: DefaultHeartbeat,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "failed to apply server option")
		}
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/skills", s.handleListSkills).Methods(http.MethodGet)
	api.HandleFunc("/skills", s.handleSubmitSkill).Methods(http.MethodPost)
	api.HandleFunc("/skills/{id}", s.handleGetSkill).Methods(http.MethodGet)
	api.HandleFunc("/skills/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	api.HandleFunc("/skills/{id}/download", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/skills/{id}/skill.md", s.handleSkillDocument).Methods(http.MethodGet)
	api.HandleFunc("/skills/{id}/diff", s.handleDiff).Methods(http.MethodGet)
	api.HandleFunc("/skills/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/skills/{id}/pipeline", s.handlePipelineSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/skills/{id}/pipeline/stream", s.handlePipelineStream).Methods(http.MethodGet)

	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/role", s.handleGetRole).Methods(http.MethodGet)
	api.HandleFunc("/role", s.handleSetRole).Methods(http.MethodPut)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/schema/draft", s.handleDraftSchema).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/stages", s.handleStages).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	// Preflight requests only need the CORS headers the middleware sets.
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.config.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

// responseWriter records the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets event streams flush through the logging wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to encode JSON response")
	}
}

type errorResponse struct {
	Error   string   `json:"error"`
	Status  int      `json:"status"`
	Success bool     `json:"success"`
	Fields  []string `json:"fields,omitempty"`
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		entry := logger.G(r.Context()).WithError(err)
		if status >= http.StatusInternalServerError {
			entry.Error(message)
		} else {
			entry.Debug(message)
		}
	}
	s.writeJSONResponse(w, r, status, errorResponse{Error: message, Status: status})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "web server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Close stops the listener immediately.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
