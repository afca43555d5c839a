// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/relfin/disburse/internal/bankcheck"
	"github.com/relfin/disburse/internal/batch"
	"github.com/relfin/disburse/internal/circuitbreaker"
	"github.com/relfin/disburse/internal/config"
	"github.com/relfin/disburse/internal/dashboard"
	"github.com/relfin/disburse/internal/duplicates"
	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/failures"
	"github.com/relfin/disburse/internal/healthmon"
	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/notify"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/rail"
	"github.com/relfin/disburse/internal/ratelimit"
	"github.com/relfin/disburse/internal/recon"
	"github.com/relfin/disburse/internal/security"
	"github.com/relfin/disburse/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	queueSvc     *queue.Service
	bankcheckSvc *bankcheck.Service
	dupSvc       *duplicates.Service
	batchSvc     *batch.Service
	failSvc      *failures.Service
	reconSvc     *recon.Service
	monitor      *healthmon.Monitor

	submitter   batch.Submitter
	bus         *events.Bus
	retryTimer  *failures.Timer
	probeTimer  *healthmon.Timer
	rateLimiter *ratelimit.Limiter

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSubmitter sets a custom payment submitter (for testing)
func WithSubmitter(sub batch.Submitter) Option {
	return func(s *Server) {
		s.submitter = sub
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		entryStore queue.Store
		cacheStore bankcheck.CacheStore
		flagStore  duplicates.Store
		batchStore batch.Store
		reconStore recon.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		entryStore = queue.NewPostgresStore(db)
		cacheStore = bankcheck.NewPostgresCacheStore(db)
		flagStore = duplicates.NewPostgresStore(db)
		batchStore = batch.NewPostgresStore(db)
		reconStore = recon.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		entryStore = queue.NewMemoryStore()
		cacheStore = bankcheck.NewMemoryCacheStore()
		flagStore = duplicates.NewMemoryStore()
		batchStore = batch.NewMemoryStore()
		reconStore = recon.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Async trigger bus
	s.bus = events.NewBus(s.logger)

	// Upstream claims application (demo sources when unconfigured)
	var (
		claims   queue.ClaimSource
		profiles queue.ProfileSource
	)
	if cfg.ClaimsBaseURL != "" {
		upstream := queue.NewUpstreamClient(cfg.ClaimsBaseURL, 10*time.Second)
		claims = upstream
		profiles = upstream
		s.logger.Info("claims API configured", "url", cfg.ClaimsBaseURL)
	} else {
		demo := &demoUpstream{}
		claims = demo
		profiles = demo
		s.logger.Warn("CLAIMS_BASE_URL not set, admitting synthetic approved claims")
	}

	// Routing code verification
	var verifier bankcheck.Verifier
	if cfg.BankDirectoryURL != "" {
		verifier = bankcheck.NewDirectoryVerifier(cfg.BankDirectoryURL, 10*time.Second)
		s.logger.Info("bank directory configured", "url", cfg.BankDirectoryURL)
	} else {
		verifier = &demoVerifier{}
		s.logger.Warn("BANK_DIRECTORY_URL not set, accepting well-formed routing codes")
	}

	// Payment rail (may be injected by tests)
	s.monitor = healthmon.NewMonitor(s.newNotifier())
	if s.submitter == nil {
		if cfg.RailBaseURL != "" {
			client := rail.NewClient(rail.Config{
				BaseURL:        cfg.RailBaseURL,
				TokenURL:       cfg.RailTokenURL,
				ClientID:       cfg.RailClientID,
				ClientSecret:   cfg.RailClientSecret,
				RequestTimeout: cfg.RailRequestTimeout,
				BatchTimeout:   cfg.RailBatchTimeout,
				MaxAttempts:    cfg.RailMaxAttempts,
			}, circuitbreaker.New(5, 30*time.Second))
			s.submitter = client
			s.monitor.Register("payment-rail", client)
			s.logger.Info("payment rail configured", "url", cfg.RailBaseURL)
		} else {
			s.submitter = &localRail{}
			s.logger.Warn("RAIL_BASE_URL not set, payments settle locally")
		}
	}
	if cfg.GatewayBaseURL != "" {
		gw := rail.NewGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.RailRequestTimeout)
		s.monitor.Register("gateway", gw)
		s.logger.Info("secondary gateway configured", "url", cfg.GatewayBaseURL)
	}

	// Services
	s.queueSvc = queue.NewService(entryStore, claims, profiles, s.bus)
	s.bankcheckSvc = bankcheck.NewService(cacheStore, verifier, entryStore)
	s.dupSvc = duplicates.NewService(flagStore, entryStore)
	s.reconSvc = recon.NewService(reconStore, entryStore, s.bus)
	s.failSvc = failures.NewService(entryStore, s.submitter, s.reconSvc)
	s.batchSvc = batch.NewService(batchStore, entryStore, s.submitter, s.failSvc, s.bus)

	// Admission fans out to validation and duplicate detection; a finished
	// import kicks off a matching run.
	s.bus.Subscribe(events.TopicEntryAdmitted, "bank-validation", func(ctx context.Context, ev events.Event) error {
		_, err := s.bankcheckSvc.Validate(ctx, ev.EntityID)
		return err
	})
	s.bus.Subscribe(events.TopicEntryAdmitted, "duplicate-check", func(ctx context.Context, ev events.Event) error {
		_, err := s.dupSvc.Check(ctx, ev.EntityID)
		return err
	})
	s.bus.Subscribe(events.TopicReconImported, "match-run", func(ctx context.Context, ev events.Event) error {
		_, err := s.reconSvc.MatchAll(ctx)
		return err
	})

	// Background timers
	s.retryTimer = failures.NewTimer(s.failSvc, cfg.RetrySweepInterval, s.logger)
	s.probeTimer = healthmon.NewTimer(s.monitor, cfg.HealthProbeInterval, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// newNotifier picks the alert sink: webhook when configured, log otherwise.
// An unsafe webhook target falls back to the log sink rather than failing
// startup.
func (s *Server) newNotifier() notify.Notifier {
	if s.cfg.NotifyWebhookURL != "" {
		if err := security.ValidateEndpointURL(s.cfg.NotifyWebhookURL); err != nil {
			s.logger.Warn("notification webhook rejected, using log sink", "error", err)
			return &notify.LogNotifier{Logger: s.logger}
		}
		return notify.NewWebhookNotifier(s.cfg.NotifyWebhookURL, s.cfg.NotifyWebhookSecret, s.logger)
	}
	return &notify.LogNotifier{Logger: s.logger}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (operator consoles run on separate origins)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (settlement file uploads are capped here too)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting. Local runs hammer the API harder than any real client.
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.Env == "development" {
		rlCfg.RequestsPerMinute = 6000
		rlCfg.BurstSize = 100
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	queue.NewHandler(s.queueSvc).RegisterRoutes(v1)
	bankcheck.NewHandler(s.bankcheckSvc).RegisterRoutes(v1)
	duplicates.NewHandler(s.dupSvc).RegisterRoutes(v1)
	batch.NewHandler(s.batchSvc).RegisterRoutes(v1)
	failures.NewHandler(s.failSvc).RegisterRoutes(v1)
	recon.NewHandler(s.reconSvc).RegisterRoutes(v1)
	healthmon.NewHandler(s.monitor).RegisterRoutes(v1)
	dashboard.NewHandler(s.queueSvc, s.batchSvc, s.dupSvc, s.reconSvc, s.monitor).RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	// Storage check
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	// Last known endpoint health, no live probing on the request path
	snapshot := s.monitor.Latest()
	checks["integrations"] = string(snapshot.Status)

	status := "healthy"
	httpStatus := http.StatusOK
	integrationsDown := len(snapshot.Endpoints) > 0 && snapshot.Status == healthmon.StatusUnhealthy
	if checks["database"] == "unhealthy" || integrationsDown {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "disburse",
		"description": "Payment queue, batch and reconciliation engine",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Retry sweep timer
	go s.retryTimer.Start(runCtx)

	// Health probe timer
	go s.probeTimer.Start(runCtx)

	// DB pool stats for /metrics
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.retryTimer.Stop()
	s.probeTimer.Stop()

	// Drain pending async triggers before the stores go away
	s.bus.Close()
	s.logger.Info("event bus drained")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
