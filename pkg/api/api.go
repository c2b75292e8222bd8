// Package api exposes the live schedule operations over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/services"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/lock"
	"github.com/jakechorley/live-schedule/pkg/metrics"
)

// Error is a failed request. It is rendered as {success:false, code, message, details}.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Response is a successful request. It is rendered as {success:true, message, data}.
type Response struct {
	Message string
	Data    any
}

// HandlerFunc is an endpoint that returns either a response or an error
type HandlerFunc func(c *gin.Context) (*Response, *Error)

// resolve adapts a HandlerFunc to gin
func resolve(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, apiErr := h(c)
		if apiErr != nil {
			c.JSON(apiErr.Status, gin.H{
				"success": false,
				"code":    apiErr.Code,
				"message": apiErr.Message,
				"details": apiErr.Details,
			})
			return
		}
		if resp == nil {
			// The handler wrote its own body
			return
		}

		body := gin.H{"success": true, "data": resp.Data}
		if resp.Message != "" {
			body["message"] = resp.Message
		}
		c.JSON(http.StatusOK, body)
	}
}

// Deps are the collaborators of the HTTP API
type Deps struct {
	DB                db.Database
	Generator         services.Generator
	Locker            lock.Locker
	Logger            *zap.Logger
	AllowedOrigins    []string
	GenerationTimeout time.Duration

	// Now is the clock used for export file names. Defaults to time.Now.
	Now func() time.Time
}

// Server holds the API handlers
type Server struct {
	deps     Deps
	validate *validator.Validate
}

// NewRouter builds the gin engine with CORS, request logging, metrics and every route
func NewRouter(deps Deps) *gin.Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{deps: deps, validate: validator.New()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Logger))
	r.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	schedules := r.Group("/api/live-schedules")
	schedules.POST("/auto-generate", resolve(s.autoGenerate))
	schedules.GET("", resolve(s.listSchedules))
	schedules.GET("/download-excel", resolve(s.downloadExcel))
	schedules.PATCH("/:batch_id/status", resolve(s.updateBatchStatus))

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestLogger writes one line per request and records request metrics
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), elapsed)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()))
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) healthz(c *gin.Context) {
	if p, ok := s.deps.DB.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorFrom maps service and store errors onto HTTP errors
func errorFrom(err error, fallback string) *Error {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, db.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, services.ErrGenerationInProgress):
		return &Error{Status: http.StatusConflict, Code: "generation_in_progress", Message: err.Error()}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: fallback}
	}
}
