package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/view"
)

const defaultLongPoll = 25 * time.Second

// SessionStore hands out the coordinator behind a session token. A session
// opened with an expiry ends then.
type SessionStore interface {
	Open(sessionID, userID string, expires time.Time) (*view.Coordinator, error)
	SignOut(sessionID string) error
	Len() int
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (identity.Claims, error)
}

// Deps are the collaborators of the API server.
type Deps struct {
	Sessions          SessionStore
	Tokens            TokenVerifier
	RequestsPerMinute int
	// LongPollTimeout bounds GET /api/view?after=N; zero means 25s.
	LongPollTimeout time.Duration
	Logger          *log.Logger
}

type Server struct {
	http.Server
	sessions    SessionStore
	tokens      TokenVerifier
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	logger      *log.Logger
	pollTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	poll := deps.LongPollTimeout
	if poll <= 0 {
		poll = defaultLongPoll
	}

	detector := security.NewDetector(logger)
	s := &Server{
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RequestsPerMinute,
		}),
		detector:    detector,
		tracer:      trace.NewMiddleware(logger, detector.ExtractClientIP),
		logger:      logger,
		pollTimeout: poll,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/statsz", s.handleStats)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Use(s.limiter.Middleware(userKey, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}))

		r.Get("/view", s.handleView)
		r.Put("/view/grouping", s.handleSetGrouping)
		r.Put("/view/filter", s.handleSetFilter)
		r.Put("/view/draft", s.handleUpdateDraft)
		r.Post("/view/suggestions/toggle", s.handleToggleSuggestions)

		r.Post("/records", s.handleSubmitRecord)
		r.Delete("/records/{id}", s.handleDeleteRecord)

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleRegisterCategory)
		r.Delete("/categories/{slug}", s.handleRemoveCategory)

		r.Post("/session/signout", s.handleSignOut)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "Stopping HTTP server", log.FieldOperation, log.OpShutdown)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil || s.tokens == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type statsResponse struct {
	Sessions           int   `json:"sessions"`
	Requests           int64 `json:"requests"`
	AvgResponseMicros  int64 `json:"avg_response_us"`
	RateLimited        int64 `json:"rate_limited"`
	RateLimitClients   int64 `json:"rate_limit_clients"`
	SuspiciousRequests int64 `json:"suspicious_requests"`
	BlockedRequests    int64 `json:"blocked_requests"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	rl := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()
	resp := statsResponse{
		Requests:           tm.TotalRequests,
		AvgResponseMicros:  tm.AverageResponseTime,
		RateLimited:        rl.TotalHits,
		RateLimitClients:   rl.ClientCount,
		SuspiciousRequests: dm.SuspiciousRequests,
		BlockedRequests:    dm.BlockedRequests,
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
