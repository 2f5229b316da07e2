package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/campusshield/internal/log"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "campusshield-backend"

const shutdownTimeout = 5 * time.Second

// NewRouter builds the HTTP routes of the scoring service.
func NewRouter(detector *Detector, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = log.Discard()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(RequestLogger(logger))
	router.Use(ErrorHandler())

	router.GET("/health", HealthCheck)
	router.POST("/scan", ScanEmail(detector))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found", "status": "error"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed", "status": "error"})
	})
	return router
}

// HealthCheck reports that the service is up.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

// ScanEmail scores one e-mail.
func ScanEmail(detector *Detector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in scanInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be valid JSON", "status": "error"})
			return
		}

		req, err := validate(in)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": publicMessage(err), "status": "error"})
			return
		}

		d := detector.Analyze(req)
		c.JSON(http.StatusOK, gin.H{
			"risk_level":       d.RiskLevel,
			"confidence_score": d.ConfidenceScore,
			"reasons":          d.Reasons,
			"explanations":     d.Explanations,
			"suspicious_links": d.SuspiciousLinks,
			"status":           "success",
		})
	}
}

// RequestLogger logs one line per request without its content.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

// ErrorHandler turns panics into a JSON 500 without internal details.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "An unexpected error occurred during analysis",
			"status": "error",
		})
		c.Abort()
	})
}

// Server runs the scoring service.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, detector *Detector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(detector, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("scoring service stopped")
	return nil
}
