package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Config configures a Server instance.
type Config struct {
	Store      Store
	Executor   Executor
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
	Now        func() time.Time
}

// Server is the funcdeck development backend HTTP API.
type Server struct {
	store      Store
	executor   Executor
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
	now        func() time.Time

	// runs tracks in-flight simulated executions so Drain can wait on them.
	runs sync.WaitGroup
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	executor := cfg.Executor
	if executor == nil {
		executor = EchoExecutor{Delay: 150 * time.Millisecond}
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Server{
		store:      store,
		executor:   executor,
		corsOrigin: corsOrigin,
		maxBody:    maxBody,
		logger:     logger,
		now:        now,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)
	return handler
}

// RegisterRoutes mounts the registry and invocation routes onto a mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/functions", s.handleListFunctions)
	mux.HandleFunc("POST /api/functions", s.handleCreateFunction)
	mux.HandleFunc("GET /api/functions/{id}", s.handleGetFunction)
	mux.HandleFunc("DELETE /api/functions/{id}", s.handleDeleteFunction)
	mux.HandleFunc("POST /api/functions/{id}/invocations", s.handleInvoke)
	mux.HandleFunc("GET /api/functions/{id}/invocations", s.handleListInvocations)
	mux.HandleFunc("GET /api/functions/{id}/invocations/{invocation_id}", s.handleGetInvocation)
}

// Drain waits for in-flight simulated executions to settle.
func (s *Server) Drain() {
	s.runs.Wait()
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the error envelope; clients read the top-level message field.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Message: message, Code: code})
}
