package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/tasks"
)

// ExtractDetails fetches and stores case details. ?force=true overwrites
// details already stored.
func (h *Handlers) ExtractDetails(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	record, err := h.pipeline.ExtractDetails(c.Request.Context(), id, c.Query("force") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}

// DiscoverOrders lists the case's orders on the court site and stores the
// new ones. ?fresh=true bypasses the cache.
func (h *Handlers) DiscoverOrders(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	discovery, err := h.pipeline.DiscoverOrders(c.Request.Context(), id, c.Query("fresh") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    discovery,
	})
}

// ProcessCase queues a background run of every pending order of a case.
func (h *Handlers) ProcessCase(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Cases.Get(id); err != nil {
		h.fail(c, err)
		return
	}
	h.submit(c, tasks.KindProcessCase, id, func(ctx context.Context) (interface{}, error) {
		return h.pipeline.ProcessCase(ctx, id)
	})
}

type perspectiveRequest struct {
	Perspective string `json:"perspective"`
}

// SetPerspective stores a new perspective before answering and queues
// reclassification of the case's classified orders. A reclassification
// already running gets a follow-up queued behind it.
func (h *Handlers) SetPerspective(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var req perspectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Perspective == "" {
		h.badRequest(c, "Request body must include perspective")
		return
	}
	if _, err := h.store.Cases.SetPerspective(id, req.Perspective); err != nil {
		h.fail(c, err)
		return
	}

	task, created, err := h.tasks.SubmitLatest(tasks.KindReclassify, id, func(ctx context.Context) (interface{}, error) {
		return h.pipeline.Reclassify(ctx, id)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"created":     created,
		"perspective": req.Perspective,
		"data":        task,
	})
}

// GenerateRollup queues regeneration of a case's progression summary.
func (h *Handlers) GenerateRollup(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Cases.Get(id); err != nil {
		h.fail(c, err)
		return
	}
	h.submit(c, tasks.KindRollup, id, func(ctx context.Context) (interface{}, error) {
		return h.pipeline.Rollup(ctx, id)
	})
}

// submit queues fn and answers 202 with the task. An equivalent task
// already queued or running is returned instead.
func (h *Handlers) submit(c *gin.Context, kind string, caseID uint, fn tasks.Func) {
	task, created, err := h.tasks.Submit(kind, caseID, fn)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"created": created,
		"data":    task,
	})
}

func (h *Handlers) RetrieveOrder(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.pipeline.Retrieval.Retrieve(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

func (h *Handlers) ExtractOrder(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.pipeline.Extraction.Extract(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ClassifyOrder classifies one order. ?force=true replaces an existing
// summary. A next hearing date found in the order opens its window.
func (h *Handlers) ClassifyOrder(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.Orders.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.pipeline.Classifier.Classify(c.Request.Context(), id, c.Query("force") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.NextHearingDate != nil {
		if _, err := h.pipeline.NoteHearing(order.CaseID, *result.NextHearingDate); err != nil {
			h.logger.Warn("Failed to record hearing date", "order_id", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ResetOrder clears the retry counter of an order.
func (h *Handlers) ResetOrder(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.store.Orders.ResetRetries(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Retry counter reset",
	})
}

// Sweep runs one monitoring sweep synchronously. A sweep already running
// answers 409.
func (h *Handlers) Sweep(c *gin.Context) {
	report, err := h.scheduler.Sweep(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// ActiveWindows lists windows that are open today.
func (h *Handlers) ActiveWindows(c *gin.Context) {
	windows, err := h.scheduler.Lifecycle().Active()
	if err != nil {
		h.fail(c, err)
		return
	}
	if windows == nil {
		windows = []database.MonitoringWindow{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    windows,
		"count":   len(windows),
	})
}
