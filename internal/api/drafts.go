package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
)

const maxBulkIDs = 500

type modeRequest struct {
	Variant string `json:"variant" binding:"required"`
}

type bulkRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) GetDraft(c *gin.Context) {
	d, err := h.store.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get draft", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) ApproveDraft(c *gin.Context) {
	d, err := h.drafts.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "approve draft", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) RejectDraft(c *gin.Context) {
	d, err := h.drafts.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "reject draft", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ApplyDraft applies an approved draft and returns it with its Change.
func (h *Handler) ApplyDraft(c *gin.Context) {
	d, change, err := h.drafts.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "apply draft", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": d, "change": change})
}

func (h *Handler) SelectMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	v := domain.Variant(strings.ToLower(strings.TrimSpace(req.Variant)))
	d, err := h.drafts.SelectMode(c.Request.Context(), c.Param("id"), v)
	if err != nil {
		h.fail(c, "select mode", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) BulkApprove(c *gin.Context) {
	h.bulk(c, "bulk approve", h.drafts.BulkApprove)
}

func (h *Handler) BulkApply(c *gin.Context) {
	h.bulk(c, "bulk apply", h.drafts.BulkApply)
}

// bulk always answers 200 with per-item outcomes; only malformed requests
// and whole-operation failures are errors.
func (h *Handler) bulk(c *gin.Context, op string, fn func(ctx context.Context, ids []string) (*drafts.BulkResult, error)) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if len(req.IDs) == 0 {
		h.fail(c, op, errorf("ids must not be empty"))
		return
	}
	if len(req.IDs) > maxBulkIDs {
		h.fail(c, op, errorf("at most %d ids per request", maxBulkIDs))
		return
	}

	res, err := fn(c.Request.Context(), req.IDs)
	if err != nil && res == nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RollbackChange(c *gin.Context) {
	change, err := h.drafts.RollbackChange(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "rollback change", err)
		return
	}
	c.JSON(http.StatusOK, change)
}
