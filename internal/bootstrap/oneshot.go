package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/rawinstinctart/rawauditpro/internal/crawler"
	"github.com/rawinstinctart/rawauditpro/internal/database"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/report"
)

// AuditOptions configures a one-shot audit.
type AuditOptions struct {
	URL       string
	Policy    string
	AutoFix   bool
	AutoApply bool
}

// RunAudit audits one site against the in-memory store and renders the
// report to w. Nothing is persisted.
func RunAudit(ctx context.Context, opts Options, ao AuditOptions, w io.Writer) (*report.Report, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	seed, err := crawler.NormalizeURL(ao.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ao.URL, err)
	}
	host, err := crawler.Hostname(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ao.URL, err)
	}

	storage, err := SetupStorage(ctx, cfg, log, true)
	if err != nil {
		return nil, err
	}
	services, err := SetupServices(cfg, storage, nil, log)
	if err != nil {
		return nil, err
	}
	orch := services.Orchestrator
	defer func() { _ = orch.Shutdown(context.Background()) }()

	site := &domain.Website{Name: host, URL: seed}
	if err = storage.Store.CreateWebsite(ctx, site); err != nil {
		return nil, fmt.Errorf("create website: %w", err)
	}
	a, err := orch.Trigger(ctx, site.ID, ao.Policy)
	if err != nil {
		return nil, err
	}
	if err = orch.Run(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("audit %s: %w", seed, err)
	}

	if ao.AutoFix {
		fixed, fixErr := orch.AutoFix(ctx, a.ID)
		if fixErr != nil {
			return nil, fmt.Errorf("auto-fix: %w", fixErr)
		}
		log.Info("Auto-fix complete", logger.Int("fixed", fixed))
	}
	if ao.AutoApply {
		applied, applyErr := orch.AutoApply(ctx, a.ID)
		if applyErr != nil {
			return nil, fmt.Errorf("auto-apply: %w", applyErr)
		}
		log.Info("Auto-apply complete", logger.Int("applied", applied))
	}

	r, err := report.Generate(ctx, storage.Store, a.ID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		report.Render(w, r)
	}
	return r, nil
}

// PrintReport renders the report of a stored audit.
func PrintReport(ctx context.Context, opts Options, auditID string, w io.Writer) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer db.Close()

	r, err := report.Generate(ctx, database.NewStore(db), auditID)
	if err != nil {
		return err
	}
	report.Render(w, r)
	return nil
}

// Migrate applies every pending migration when up is set, otherwise it
// rolls back steps migrations.
func Migrate(ctx context.Context, opts Options, up bool, steps int) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := CreateLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer db.Close()

	if up {
		return database.MigrateUp(db.DB, log)
	}
	return database.MigrateDown(db.DB, steps, log)
}
