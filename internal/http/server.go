package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "moneyflow/internal/log"
	"moneyflow/internal/metrics"
	"moneyflow/internal/services"
)

// Services are the application services behind the API.
type Services struct {
	Accounts     *services.AccountService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Rules        *services.RuleService
	Balances     *services.BalanceCalculator
	Engine       *services.RecurringEngine
	Initializer  *services.DefaultDataInitializer
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// RateLimit is the number of requests a caller may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	Logger     *applog.Logger
}

// DefaultOptions allows 120 requests per minute per caller.
func DefaultOptions() Options {
	return Options{RateLimit: 120, RateWindow: time.Minute}
}

type Server struct {
	http.Server
	svc      Services
	db       Pinger
	limiter  *rateLimiter
	security *securityMetrics

	shutdownOnce sync.Once
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, svc Services, db Pinger, opts Options) *Server {
	s := &Server{
		svc:      svc,
		db:       db,
		security: &securityMetrics{},
	}
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		s.limiter = newRateLimiter(opts.RateLimit, window)
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpMetrics)
	r.Use(applog.Middleware(logger, extractClientIP))
	r.Use(s.securityHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Use(requireOwner)

		r.Post("/me/initialize", s.handleInitialize)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Patch("/{id}", s.handleUpdateAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
			r.Get("/{id}/balance", s.handleAccountBalance)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.Patch("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Route("/recurring-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Post("/run", s.handleRunDueRules)
			r.Get("/{id}", s.handleGetRule)
			r.Patch("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// httpMetrics records request counts and latency by route pattern.
func httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Shutdown stops background routines and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
