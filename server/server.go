// Package server exposes the planner over HTTP with gin.
//
// Routes:
//
//	GET  /         static liveness message
//	POST /plan     run one planner turn, answers {"plan": ...} or {"error": ...}
//	GET  /healthz  {"status": "ok"}
//	GET  /metrics  Prometheus exposition
//
// Plan failures are reported in the body with HTTP 200, so clients only need
// to handle one response shape.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/messplanner"
	"github.com/hupe1980/messplanner/logging"
)

// HomeMessage is returned by GET /.
const HomeMessage = "Desi Mess Planner LIVE – POST to /plan"

// Identity headers consulted when the body carries no identity.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// Planner runs one planner turn.
type Planner interface {
	Plan(ctx context.Context, req messplanner.PlanRequest) (messplanner.PlanResult, error)
}

// PlanBody is the JSON body of POST /plan. Every field is optional.
type PlanBody struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Options configures the HTTP server.
type Options struct {
	Addr         string
	EnableCORS   bool
	AllowOrigins []string
	Debug        bool
	// Registry gathers /metrics. A fresh registry with Go and process
	// collectors is created when nil.
	Registry          *prometheus.Registry
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            logging.Logger
}

// Server is the HTTP surface of the planner.
type Server struct {
	planner Planner
	opts    Options
	engine  *gin.Engine
	metrics *Metrics
}

// New creates a Server and registers its routes.
func New(planner Planner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:              ":8080",
		EnableCORS:        true,
		AllowOrigins:      []string{"*"},
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	if opts.EnableCORS {
		corsConfig := cors.DefaultConfig()
		if len(opts.AllowOrigins) == 0 || opts.AllowOrigins[0] == "*" {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = opts.AllowOrigins
		}
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", HeaderUserID, HeaderSessionID}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		planner: planner,
		opts:    opts,
		engine:  engine,
		metrics: MustNewMetrics(opts.Registry),
	}

	engine.GET("/", s.home)
	engine.POST("/plan", s.plan)
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.listen", "addr", s.opts.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.opts.Logger.Info("server.shutdown", "addr", s.opts.Addr)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}

func (s *Server) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": HomeMessage})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) plan(c *gin.Context) {
	done := s.metrics.begin()

	var body PlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		// Malformed or empty bodies behave like {}.
		s.opts.Logger.Debug("server.plan.body_ignored", "error", err.Error())
		body = PlanBody{}
	}

	req := messplanner.PlanRequest{
		Message:   body.Message,
		UserID:    firstNonEmpty(body.UserID, c.GetHeader(HeaderUserID)),
		SessionID: firstNonEmpty(body.SessionID, c.GetHeader(HeaderSessionID)),
	}

	res, err := s.planner.Plan(c.Request.Context(), req)
	if err != nil {
		s.opts.Logger.Warn("server.plan.error", "user_id", req.UserID, "session_id", req.SessionID, "error", err.Error())
		done(outcomeError)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	if res.Pending {
		done(outcomePending)
	} else {
		done(outcomePlan)
	}

	c.JSON(http.StatusOK, gin.H{"plan": res.Plan})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
