package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	websites := v1.Group("/websites")
	websites.POST("", h.CreateWebsite)
	websites.GET("", h.ListWebsites)
	websites.GET("/:id", h.GetWebsite)
	websites.PUT("/:id", h.UpdateWebsite)
	websites.DELETE("/:id", h.DeleteWebsite)
	websites.POST("/:id/audits", h.TriggerAudit)
	websites.GET("/:id/audits", h.ListWebsiteAudits)

	audits := v1.Group("/audits")
	audits.GET("/:id", h.GetAudit)
	audits.GET("/:id/status", h.AuditStatus)
	audits.POST("/:id/cancel", h.CancelAudit)
	audits.GET("/:id/issues", h.ListIssues)
	audits.GET("/:id/drafts", h.ListDrafts)
	audits.GET("/:id/changes", h.ListChanges)
	audits.GET("/:id/activity", h.ListActivity)
	audits.GET("/:id/report", h.Report)
	audits.POST("/:id/autofix", h.AutoFix)
	audits.POST("/:id/autoapply", h.AutoApply)

	v1.GET("/issues/:id", h.GetIssue)

	drafts := v1.Group("/drafts")
	drafts.POST("/bulk-approve", h.BulkApprove)
	drafts.POST("/bulk-apply", h.BulkApply)
	drafts.GET("/:id", h.GetDraft)
	drafts.POST("/:id/approve", h.ApproveDraft)
	drafts.POST("/:id/reject", h.RejectDraft)
	drafts.POST("/:id/apply", h.ApplyDraft)
	drafts.PUT("/:id/mode", h.SelectMode)

	v1.POST("/changes/:id/rollback", h.RollbackChange)
}
