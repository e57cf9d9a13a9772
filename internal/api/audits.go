package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/report"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

type triggerRequest struct {
	Policy string `json:"policy"`
}

// StatusResponse is the polling view of an audit.
type StatusResponse struct {
	ID           string              `json:"id"`
	Status       domain.AuditStatus  `json:"status"`
	CoarseStatus domain.CoarseStatus `json:"coarse_status"`
	Progress     int                 `json:"progress"`
	CurrentStep  string              `json:"current_step"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}

// TriggerAudit queues an audit for the website and starts it in the
// background. An empty body uses the default policy.
func (h *Handler) TriggerAudit(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	a, err := h.audits.Trigger(c.Request.Context(), c.Param("id"), req.Policy)
	if err != nil {
		h.fail(c, "trigger audit", err)
		return
	}
	if err = h.audits.Start(a.ID); err != nil {
		h.fail(c, "start audit", err)
		return
	}
	c.JSON(http.StatusAccepted, a)
}

func (h *Handler) GetAudit(c *gin.Context) {
	a, err := h.store.GetAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get audit", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) AuditStatus(c *gin.Context) {
	a, err := h.store.GetAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get audit", err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		ID:           a.ID,
		Status:       a.Status,
		CoarseStatus: a.Status.Coarse(),
		Progress:     a.Progress,
		CurrentStep:  a.CurrentStep,
		ErrorMessage: a.ErrorMessage,
	})
}

// CancelAudit stops an audit running in this process.
func (h *Handler) CancelAudit(c *gin.Context) {
	id := c.Param("id")
	a, err := h.store.GetAudit(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "cancel audit", err)
		return
	}
	if a.Status.IsTerminal() || !h.audits.Cancel(id) {
		h.fail(c, "cancel audit", fmt.Errorf("%w: audit %s is not running", domain.ErrInvalidState, id))
		return
	}
	logger.FromContext(c.Request.Context()).Info("Audit cancel requested", logger.AuditID(id))
	c.JSON(http.StatusAccepted, gin.H{"id": id, "cancelled": true})
}

func (h *Handler) ListIssues(c *gin.Context) {
	statuses, err := parseStatuses(c,
		domain.IssuePending, domain.IssueApproved, domain.IssueRejected, domain.IssueFixed, domain.IssueAutoFixed)
	if err != nil {
		h.fail(c, "list issues", err)
		return
	}
	id := c.Param("id")
	if _, err = h.store.GetAudit(c.Request.Context(), id); err != nil {
		h.fail(c, "list issues", err)
		return
	}
	issues, err := h.store.ListIssues(c.Request.Context(), domain.IssueFilter{AuditID: id, Statuses: statuses})
	if err != nil {
		h.fail(c, "list issues", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues, "count": len(issues)})
}

func (h *Handler) GetIssue(c *gin.Context) {
	issue, err := h.store.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get issue", err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (h *Handler) ListDrafts(c *gin.Context) {
	statuses, err := parseStatuses(c,
		domain.DraftPending, domain.DraftApproved, domain.DraftRejected, domain.DraftApplied)
	if err != nil {
		h.fail(c, "list drafts", err)
		return
	}
	id := c.Param("id")
	if _, err = h.store.GetAudit(c.Request.Context(), id); err != nil {
		h.fail(c, "list drafts", err)
		return
	}
	ds, err := h.store.ListDrafts(c.Request.Context(), domain.DraftFilter{AuditID: id, Statuses: statuses})
	if err != nil {
		h.fail(c, "list drafts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": ds, "count": len(ds)})
}

func (h *Handler) ListChanges(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.GetAudit(c.Request.Context(), id); err != nil {
		h.fail(c, "list changes", err)
		return
	}
	changes, err := h.store.ListChanges(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "list changes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes, "count": len(changes)})
}

func (h *Handler) ListActivity(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(c, "list activity", errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxActivityLimit)
	}
	id := c.Param("id")
	if _, err := h.store.GetAudit(c.Request.Context(), id); err != nil {
		h.fail(c, "list activity", err)
		return
	}
	events, err := h.store.ListActivity(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, "list activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *Handler) Report(c *gin.Context) {
	r, err := report.Generate(c.Request.Context(), h.store, c.Param("id"))
	if err != nil {
		h.fail(c, "build report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) AutoFix(c *gin.Context) {
	id := c.Param("id")
	if err := h.requireFinalized(c, id); err != nil {
		h.fail(c, "auto-fix", err)
		return
	}
	fixed, err := h.audits.AutoFix(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "auto-fix", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fixed": fixed})
}

func (h *Handler) AutoApply(c *gin.Context) {
	id := c.Param("id")
	if err := h.requireFinalized(c, id); err != nil {
		h.fail(c, "auto-apply", err)
		return
	}
	applied, err := h.audits.AutoApply(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "auto-apply", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

// requireFinalized keeps sweeps off audits whose issue set is still growing.
func (h *Handler) requireFinalized(c *gin.Context, id string) error {
	a, err := h.store.GetAudit(c.Request.Context(), id)
	if err != nil {
		return err
	}
	if a.Status != domain.AuditFinalized {
		return fmt.Errorf("%w: audit %s is %s, not finalized", domain.ErrInvalidState, id, a.Status)
	}
	return nil
}
