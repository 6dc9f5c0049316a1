package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"rette/internal/log"
	"rette/internal/metrics"
	"rette/internal/middleware/ratelimit"
	"rette/internal/middleware/security"
	"rette/internal/middleware/trace"
	"rette/internal/services"
	"rette/internal/storage"
)

// HistoryReader lists journaled payments, newest first.
type HistoryReader interface {
	ListPayments(ctx context.Context, recordID int64, limit int) ([]storage.PaymentEntry, error)
}

// Options configures optional server collaborators.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *log.Logger
	// History is nil when the journal is disabled.
	History HistoryReader
	// RequestsPerMinute bounds mutating requests per client. Zero uses the
	// limiter default.
	RequestsPerMinute int
	Now               func() time.Time
}

type Server struct {
	http.Server
	tracker *services.Tracker
	history HistoryReader
	metrics *metrics.Metrics
	logger  *log.Logger

	rateLimiter *ratelimit.Limiter
	tracing     *trace.Middleware
	clientIP    *security.ClientIPResolver

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

func NewServer(addr string, tracker *services.Tracker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rlCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		rlCfg.RequestsPerMinute = opts.RequestsPerMinute
		rlCfg.Burst = max(1, min(rlCfg.Burst, opts.RequestsPerMinute))
	}

	s := &Server{
		tracker:     tracker,
		history:     opts.History,
		metrics:     opts.Metrics,
		logger:      opts.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(rlCfg),
		clientIP:    security.NewClientIPResolver(),
		started:     opts.Now(),
		now:         opts.Now,
	}
	s.tracing = trace.NewMiddleware(opts.Logger, s.clientIP.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/roster", s.handleRoster)
	mux.HandleFunc("POST /api/roster/reload", s.handleReload)
	mux.HandleFunc("POST /api/records/{id}/pay", s.handleMarkPaid)
	mux.HandleFunc("PUT /api/records/{id}/payment-date", s.handleSetPaymentDate)
	mux.HandleFunc("POST /api/records/{id}/selection", s.handleToggleRecord)
	mux.HandleFunc("POST /api/cohorts/{cohort}/selection", s.handleToggleCohort)
	mux.HandleFunc("POST /api/payments/bulk", s.handleBulkPay)
	mux.HandleFunc("GET /api/payments/history", s.handleHistory)
	mux.HandleFunc("/", s.handleNotFound)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(s.clientIP.ExtractClientIP, s.handleRateLimited,
		http.MethodGet, http.MethodHead)

	var handler http.Handler = mux
	handler = limited(handler)
	handler = log.RequestIDMiddleware(trace.FromRequest)(handler)
	handler = log.ComponentMiddleware(log.ComponentHTTP)(handler)
	handler = log.Middleware(opts.Logger)(handler)
	handler = headers.Middleware(handler)
	handler = s.tracing.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter cleanup and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "too many requests, try again later").Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	path := sanitizeInput(r.URL.Path)
	if len(path) > 128 {
		path = path[:128]
	}
	ErrorResponse(http.StatusNotFound, CodeNotFound, "no route for "+strings.ToUpper(r.Method)+" "+path).Write(w)
}
