// Package ops serves the crawler's operational surface: health probe,
// Prometheus metrics, a status API, and a websocket log stream. It is
// read-only; the catalog remains the only thing the crawler writes to.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lsst-dm/imgcrawl/internal/catalog"
	"github.com/lsst-dm/imgcrawl/internal/db"
	"github.com/lsst-dm/imgcrawl/internal/logger"
	"github.com/lsst-dm/imgcrawl/internal/services"
)

// SchedulerStatus is the slice of scheduler the ops API needs.
type SchedulerStatus interface {
	Stats() services.SchedulerStats
}

// BreakerStatus reports catalog circuit-breaker state.
type BreakerStatus interface {
	BreakerStats() catalog.CircuitBreakerStats
}

// ServerDeps carries everything the ops server reads from.
type ServerDeps struct {
	Scheduler SchedulerStatus
	Repo      *db.Repository
	Catalog   BreakerStatus
	Metrics   http.Handler
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       ServerDeps
	startTime  time.Time
}

func NewServer(deps ServerDeps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorf("[PANIC RECOVERY] path=%s method=%s error=%v",
			c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))

	s := &Server{
		router:    router,
		deps:      deps,
		startTime: time.Now(),
	}

	router.GET("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/cycles", s.handleCycles)

	hub := NewLogHub()
	v1.GET("/logs/ws", hub.HandleConnection)

	return s
}

// Start begins serving on the given port. Non-blocking; errors after
// startup are logged, not returned.
func (s *Server) Start(port string) {
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Ops server listening on :%s", port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Ops server failed: %v", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Repo != nil {
		if err := s.deps.Repo.DB.Ping(); err != nil {
			status["status"] = "degraded"
			status["journal_error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Scheduler != nil {
		resp["scheduler"] = s.deps.Scheduler.Stats()
	}
	if s.deps.Catalog != nil {
		resp["catalog_breaker"] = s.deps.Catalog.BreakerStats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCycles(c *gin.Context) {
	if s.deps.Repo == nil {
		c.JSON(http.StatusOK, gin.H{"cycles": []db.CycleRecord{}})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
	}

	cycles, err := s.deps.Repo.RecentCycles(limit)
	if err != nil {
		logger.Errorf("Failed to read recent cycles: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read cycle history"})
		return
	}
	if cycles == nil {
		cycles = []db.CycleRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}
