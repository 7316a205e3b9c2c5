package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/cache"
	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/guard"
	"github.com/JustJay7/court-case-monitor/internal/intake"
	"github.com/JustJay7/court-case-monitor/internal/monitor"
	"github.com/JustJay7/court-case-monitor/internal/pipeline"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/internal/tasks"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	store     *repository.Store
	intake    *intake.Service
	pipeline  *pipeline.Service
	scheduler *monitor.Scheduler
	tasks     *tasks.Runner
	cache     cache.Cache
	lock      *guard.SchedulerLock
	logger    *logger.Logger
	cfg       *config.Config
}

// Deps are the collaborators the handlers serve.
type Deps struct {
	DB        *gorm.DB
	Store     *repository.Store
	Intake    *intake.Service
	Pipeline  *pipeline.Service
	Scheduler *monitor.Scheduler
	Tasks     *tasks.Runner
	Cache     cache.Cache
	Lock      *guard.SchedulerLock
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps, log *logger.Logger, cfg *config.Config) *Handlers {
	return &Handlers{
		db:        deps.DB,
		store:     deps.Store,
		intake:    deps.Intake,
		pipeline:  deps.Pipeline,
		scheduler: deps.Scheduler,
		tasks:     deps.Tasks,
		cache:     deps.Cache,
		lock:      deps.Lock,
		logger:    log,
		cfg:       cfg,
	}
}

// fail writes a sanitized error. Server-side failures log the full error.
func (h *Handlers) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "kind", kind, "error", err)
	} else {
		h.logger.Warn("Request rejected", "path", c.FullPath(), "kind", kind, "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   apperr.Sanitize(err),
		"kind":    kind,
	})
}

func (h *Handlers) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
		"kind":    apperr.KindValidation,
	})
}

// paramID reads a numeric path parameter, answering 400 when it is not one.
func (h *Handlers) paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		h.badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbHealthy := false
	if sqlDB, err := h.db.DB(); err == nil {
		dbHealthy = sqlDB.PingContext(c.Request.Context()) == nil
	}
	var sweeping bool
	var since time.Time
	if h.lock != nil {
		sweeping, since = h.lock.Held()
	}

	status := http.StatusOK
	state := "healthy"
	if !dbHealthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	body := gin.H{
		"status":   state,
		"database": dbHealthy,
		"cache":    h.cache.Stats(),
		"sweeping": sweeping,
		"time":     time.Now().Unix(),
	}
	if sweeping {
		body["sweep_started_at"] = since
	}
	c.JSON(status, body)
}

// CacheStats returns cache statistics
func (h *Handlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.cache.Stats(),
	})
}

// GetTask reports the state of a background task.
func (h *Handlers) GetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    task,
	})
}
