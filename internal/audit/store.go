package audit

import (
	"context"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/imaging"
)

// Store is the persistence the orchestrator needs. Status changes are
// compare-and-swap updates; a miss is domain.ErrInvalidState.
type Store interface {
	GetWebsite(ctx context.Context, id string) (*domain.Website, error)

	CreateAudit(ctx context.Context, a *domain.Audit) error
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)
	ClaimAudit(ctx context.Context, id string, at time.Time) (*domain.Audit, error)
	AdvanceAudit(ctx context.Context, id string, from, to domain.AuditStatus, step string, progress int) error
	UpdateProgress(ctx context.Context, id, step string, progress int) error
	SaveCrawl(ctx context.Context, id string, pagesScanned int, snapshot domain.JSONBMap) error
	SaveScore(ctx context.Context, id string, score domain.AuditScore, at time.Time) error
	FinalizeAudit(ctx context.Context, id string, at time.Time) error
	FailAudit(ctx context.Context, id, message string, at time.Time) error
	FailActiveAudits(ctx context.Context, message string, at time.Time) (int, error)

	CreateIssue(ctx context.Context, i *domain.Issue) error
	ListIssues(ctx context.Context, filter domain.IssueFilter) ([]*domain.Issue, error)
	AutoFixIssue(ctx context.Context, id string, at time.Time) (*domain.Change, error)

	CreateDraft(ctx context.Context, d *domain.Draft) error
}

// SiteCrawler is satisfied by *crawler.Crawler.
type SiteCrawler interface {
	Crawl(ctx context.Context, seed string, maxPages int, onPage crawler.PageFunc) ([]*crawler.PageRecord, error)
}

// ImageInspector is satisfied by *imaging.Inspector.
type ImageInspector interface {
	InspectAll(ctx context.Context, refs []crawler.ImageRef) ([]*imaging.ImageRecord, error)
}
