// Package api exposes websites, audits, issues, drafts and reports over
// HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/policy"
)

// WebsiteStore manages websites.
type WebsiteStore interface {
	CreateWebsite(ctx context.Context, w *domain.Website) error
	GetWebsite(ctx context.Context, id string) (*domain.Website, error)
	ListWebsites(ctx context.Context, accountID string) ([]*domain.Website, error)
	UpdateWebsite(ctx context.Context, w *domain.Website) error
	DeleteWebsite(ctx context.Context, id string) error
}

// AuditReader serves the read side of audits.
type AuditReader interface {
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)
	ListAudits(ctx context.Context, f domain.AuditFilter) ([]*domain.Audit, error)
	ListIssues(ctx context.Context, f domain.IssueFilter) ([]*domain.Issue, error)
	GetIssue(ctx context.Context, id string) (*domain.Issue, error)
	ListDrafts(ctx context.Context, f domain.DraftFilter) ([]*domain.Draft, error)
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	ListChanges(ctx context.Context, auditID string) ([]*domain.Change, error)
	ListActivity(ctx context.Context, auditID string, limit int) ([]*domain.ActivityEvent, error)
}

// Store is everything the handlers read or write directly.
type Store interface {
	WebsiteStore
	AuditReader
}

// Auditor starts and controls audit runs.
type Auditor interface {
	Trigger(ctx context.Context, websiteID, policyName string) (*domain.Audit, error)
	Start(auditID string) error
	Cancel(auditID string) bool
	AutoFix(ctx context.Context, auditID string) (int, error)
	AutoApply(ctx context.Context, auditID string) (int, error)
}

// DraftManager drives the draft lifecycle.
type DraftManager interface {
	Approve(ctx context.Context, id string) (*domain.Draft, error)
	Reject(ctx context.Context, id string) (*domain.Draft, error)
	Apply(ctx context.Context, id string) (*domain.Draft, *domain.Change, error)
	SelectMode(ctx context.Context, id string, v domain.Variant) (*domain.Draft, error)
	BulkApprove(ctx context.Context, ids []string) (*drafts.BulkResult, error)
	BulkApply(ctx context.Context, ids []string) (*drafts.BulkResult, error)
	RollbackChange(ctx context.Context, changeID string) (*domain.Change, error)
}

// errValidation marks request problems the handlers detect themselves.
var errValidation = errors.New("invalid request")

// Handler serves the REST API.
type Handler struct {
	store  Store
	audits Auditor
	drafts DraftManager
	log    logger.Logger
}

func NewHandler(store Store, audits Auditor, dm DraftManager, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{store: store, audits: audits, drafts: dm, log: log.With(logger.Component("api"))}
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAuditInProgress),
		errors.Is(err, domain.ErrAlreadyRolledBack),
		errors.Is(err, audit.ErrAuditNotQueued):
		return http.StatusConflict
	case errors.Is(err, errValidation),
		errors.Is(err, policy.ErrUnknownPolicy),
		errors.Is(err, drafts.ErrInvalidVariant):
		return http.StatusBadRequest
	case errors.Is(err, audit.ErrRunnerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// fail writes {"error": ...}. Unexpected errors are logged and hidden.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			logger.String("operation", op),
			logger.Error(err),
		)
		_ = c.Error(err)
		c.JSON(code, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// parseStatuses reads ?status= as a comma-separated list or repeated
// parameter and rejects values outside allowed.
func parseStatuses[T ~string](c *gin.Context, allowed ...T) ([]T, error) {
	raw := c.QueryArray("status")
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v := T(strings.ToLower(part))
			if !slices.Contains(allowed, v) {
				return nil, errorf("unknown status %q", part)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}
