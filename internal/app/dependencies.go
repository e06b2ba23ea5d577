package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/health"
	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/gormstore"
	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/memory"
	"github.com/vladislavdragonenkov/bulk-oms/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного хранилища и его жизненный цикл.
type runtimeDependencies struct {
	driver          string
	productRepo     domain.ProductRepository
	orderRepo       domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	pinger          health.Pinger
	close           func() error
}

// initRuntimeDependencies открывает хранилище, выбранное в cfg.StorageDriver.
// Для PostgreSQL при PostgresAutoMigrate применяются встроенные миграции,
// для gorm-бэкендов схема создаётся AutoMigrate.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Warn("using in-memory storage: data is lost on restart")
		return &runtimeDependencies{
			driver:          cfg.StorageDriver,
			productRepo:     memory.NewProductRepository(store),
			orderRepo:       memory.NewOrderRepository(store),
			outboxRepo:      memory.NewOutboxRepository(store),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			pinger:          store,
			close:           store.Close,
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("read migration status: %w", err)
			}
			logger.WithFields(log.Fields{
				"schema_version": state.Version,
				"applied":        state.Applied,
			}).Info("postgres migrations applied")
		}
		return &runtimeDependencies{
			driver:          cfg.StorageDriver,
			productRepo:     postgres.NewProductRepository(store),
			orderRepo:       postgres.NewOrderRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			pinger:          store,
			close:           store.Close,
		}, nil

	case StorageDriverSQLite, StorageDriverGormPostgres:
		dialect, dsn := gormstore.DialectSQLite, cfg.SQLitePath
		if cfg.StorageDriver == StorageDriverGormPostgres {
			dialect, dsn = gormstore.DialectPostgres, cfg.PostgresDSN
		}

		store, err := gormstore.Open(ctx, dialect, dsn, logger.WithField("component", "gormstore"))
		if err != nil {
			return nil, err
		}
		if err := store.AutoMigrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		return &runtimeDependencies{
			driver:          cfg.StorageDriver,
			productRepo:     gormstore.NewProductRepository(store),
			orderRepo:       gormstore.NewOrderRepository(store),
			outboxRepo:      gormstore.NewOutboxRepository(store),
			idempotencyRepo: gormstore.NewIdempotencyRepository(store),
			pinger:          store,
			close:           store.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
}
