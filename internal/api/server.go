// Package api exposes reconciliation runs, manual links and the audit log over HTTP.
// It is a thin adapter: requests are validated, handed to the reconciler service and
// the link store, and the results rendered through the reporter.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gst-reconciliation-service/internal/linkstore"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Store is the persistence the API needs. *linkstore.Store implements it.
type Store interface {
	reconciler.LinkSource
	reconciler.RunRecorder
	List(ctx context.Context, scope models.Scope) ([]linkstore.Link, error)
	Add(ctx context.Context, scope models.Scope, pair models.LinkPair, runID string) (bool, error)
	Remove(ctx context.Context, scope models.Scope, pair models.LinkPair, runID string) error
	Clear(ctx context.Context, scope models.Scope, runID string) (int, error)
	GetRun(ctx context.Context, id string) (*linkstore.Run, error)
	ListRuns(ctx context.Context, scope models.Scope, limit int) ([]*linkstore.Run, error)
	AuditLog(ctx context.Context, runID string) ([]linkstore.AuditEntry, error)
	Ping(ctx context.Context) error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps the size of a request body
	MaxBodyBytes int64 `json:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    64 << 20,
	}
}

// Validate validates the server configuration
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.port", c.Port, nil).
			WithSuggestion("Use a port between 1 and 65535")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.timeouts", nil,
			fmt.Errorf("timeouts must not be negative"))
	}
	if c.MaxBodyBytes < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server.max_body_bytes", c.MaxBodyBytes, nil)
	}
	return nil
}

// Server is the HTTP server
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     logger.Logger
}

// NewServer creates a new HTTP server over the service and store
func NewServer(config ServerConfig, service *reconciler.Service, store Store, log logger.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciler", nil, nil)
	}
	if store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "linkstore", nil, nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("api")

	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(service, store, log),
		logger:   log,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.config.MaxBodyBytes > 0 {
		s.router.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
			c.Next()
		})
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		entry := s.logger.WithFields(logger.Fields{
			"method":    method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request")
	}
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/healthz", h.HealthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/reconcile/invoices", h.ReconcileInvoices)
		v1.POST("/reconcile/notes", h.ReconcileNotes)

		v1.GET("/links", h.ListLinks)
		v1.POST("/links", h.AddLink)
		v1.DELETE("/links", h.RemoveLink)

		v1.GET("/runs", h.ListRuns)
		v1.GET("/runs/:id", h.GetRun)
		v1.GET("/runs/:id/audit", h.GetAuditLog)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.WithError(err).Error("HTTP server error")
		return errors.NetworkError(errors.CodeListenFailed, addr, err)
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultServerConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("HTTP server shutdown error")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
