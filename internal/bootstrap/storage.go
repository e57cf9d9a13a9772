package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/api"
	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/config"
	"github.com/rawinstinctart/rawauditpro/internal/database"
	"github.com/rawinstinctart/rawauditpro/internal/drafts"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/memstore"
)

const storagePingTimeout = 2 * time.Second

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store is everything the services need from persistence. Both
// *database.Store and *memstore.Store satisfy it.
type Store interface {
	audit.Store
	api.Store
	drafts.Store
	activity.Appender
}

var (
	_ Store = (*database.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// StorageComponents holds the selected store and its lifecycle hooks.
type StorageComponents struct {
	Store   Store
	Backend string
	// DB is nil for the in-memory backend.
	DB *sqlx.DB
}

// SetupStorage connects to PostgreSQL and applies migrations, or returns
// the in-memory store when inMemory is set.
func SetupStorage(ctx context.Context, cfg *config.Config, log logger.Logger, inMemory bool) (*StorageComponents, error) {
	if inMemory {
		log.Warn("Using in-memory storage, data is lost on exit")
		return &StorageComponents{Store: memstore.New(), Backend: BackendMemory}, nil
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	if err = database.MigrateUp(db.DB, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migrations: %w", err)
	}

	log.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)
	return &StorageComponents{Store: database.NewStore(db), Backend: BackendPostgres, DB: db}, nil
}

// Ping checks the backing database. The in-memory store is always up.
func (s *StorageComponents) Ping() error {
	if s.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storagePingTimeout)
	defer cancel()
	return s.DB.PingContext(ctx)
}

// Close releases the database pool.
func (s *StorageComponents) Close() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
