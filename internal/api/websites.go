package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

type websiteRequest struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"       binding:"required"`
	URL       string `json:"url"        binding:"required"`
}

func (r websiteRequest) toWebsite() (*domain.Website, error) {
	canonical, err := crawler.NormalizeURL(strings.TrimSpace(r.URL))
	if err != nil {
		return nil, errorf("url: %v", err)
	}
	return &domain.Website{
		AccountID: r.AccountID,
		Name:      strings.TrimSpace(r.Name),
		URL:       canonical,
	}, nil
}

func (h *Handler) CreateWebsite(c *gin.Context) {
	var req websiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	w, err := req.toWebsite()
	if err != nil {
		h.fail(c, "create website", err)
		return
	}
	if err = h.store.CreateWebsite(c.Request.Context(), w); err != nil {
		h.fail(c, "create website", err)
		return
	}

	h.log.Info("Website created", logger.String("website_id", w.ID), logger.String("url", w.URL))
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) ListWebsites(c *gin.Context) {
	sites, err := h.store.ListWebsites(c.Request.Context(), c.Query("account_id"))
	if err != nil {
		h.fail(c, "list websites", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"websites": sites, "count": len(sites)})
}

func (h *Handler) GetWebsite(c *gin.Context) {
	w, err := h.store.GetWebsite(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get website", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) UpdateWebsite(c *gin.Context) {
	var req websiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	w, err := req.toWebsite()
	if err != nil {
		h.fail(c, "update website", err)
		return
	}
	w.ID = c.Param("id")
	if err = h.store.UpdateWebsite(c.Request.Context(), w); err != nil {
		h.fail(c, "update website", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// DeleteWebsite removes the site with its audits, issues, drafts and changes.
func (h *Handler) DeleteWebsite(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteWebsite(c.Request.Context(), id); err != nil {
		h.fail(c, "delete website", err)
		return
	}
	h.log.Info("Website deleted", logger.String("website_id", id))
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListWebsiteAudits(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.GetWebsite(c.Request.Context(), id); err != nil {
		h.fail(c, "list audits", err)
		return
	}
	audits, err := h.store.ListAudits(c.Request.Context(), domain.AuditFilter{WebsiteID: id})
	if err != nil {
		h.fail(c, "list audits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits, "count": len(audits)})
}
