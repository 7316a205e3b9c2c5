package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/court-case-monitor/internal/intake"
)

// RegisterCase registers a case by CNR.
func (h *Handlers) RegisterCase(c *gin.Context) {
	var req intake.Request
	if err := c.ShouldBindJSON(&req); err != nil || req.CNR == "" {
		h.badRequest(c, "Request body must include cnr")
		return
	}

	record, created, err := h.intake.Register(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("Case registered", "case_id", record.ID, "cnr", record.CNR)
	}
	c.JSON(status, gin.H{
		"success": true,
		"created": created,
		"data":    record,
	})
}

// ImportCases registers cases from an uploaded CSV file (form field
// "file") or a text/csv request body.
func (h *Handlers) ImportCases(c *gin.Context) {
	body := c.Request.Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			h.badRequest(c, "Unable to read uploaded file")
			return
		}
		defer f.Close()
		body = f
	}

	summary, err := h.intake.Import(body)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}

// ListCases returns one page of cases.
func (h *Handlers) ListCases(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	activeOnly := c.DefaultQuery("active", "true") != "false"

	cases, total, err := h.store.Cases.List(activeOnly, (page-1)*limit, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cases,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *Handlers) GetCase(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	record, err := h.store.Cases.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}

// DeactivateCase soft-deletes a case.
func (h *Handlers) DeactivateCase(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.store.Cases.Deactivate(id); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("Case deactivated", "case_id", id)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Case deactivated",
	})
}

func (h *Handlers) ListOrders(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Cases.Get(id); err != nil {
		h.fail(c, err)
		return
	}
	orders, err := h.store.Orders.ListByCase(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

func (h *Handlers) ListCaseWindows(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	windows, err := h.store.Windows.ByCase(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    windows,
	})
}

func (h *Handlers) GetRollup(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	rollup, err := h.store.Artifacts.GetRollup(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rollup,
	})
}

// GetOrder returns an order with its summary when it has one.
func (h *Handlers) GetOrder(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	order, err := h.store.Orders.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"success": true,
		"data":    order,
	}
	if order.Classified {
		if summary, err := h.store.Artifacts.GetSummary(order.ID); err == nil {
			body["summary"] = summary
		}
	}
	c.JSON(http.StatusOK, body)
}
