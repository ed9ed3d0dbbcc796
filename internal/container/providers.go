// Package container provides dependency injection and lifecycle management
// for the quote approval system following Clean Architecture principles.
package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/quoteflow/cpq-backend/internal/application/dispatcher"
	"github.com/quoteflow/cpq-backend/internal/application/notification"
	"github.com/quoteflow/cpq-backend/internal/application/port"
	"github.com/quoteflow/cpq-backend/internal/application/service"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
	"github.com/quoteflow/cpq-backend/internal/infrastructure/persistence/repository"
	"github.com/quoteflow/cpq-backend/internal/infrastructure/persistence/sqlite"
	"github.com/quoteflow/cpq-backend/pkg/database"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase creates database connection and transaction manager.
// Returns DatabaseBundle containing sql.DB and TransactionManager.
// Also runs any pending database migrations automatically.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	store, err := database.Open(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	// Run database migrations if migrations directory is configured
	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(store, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlDB:          store.DB,
		TransactionMgr: sqlite.NewDB(store.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Quote: repository.NewQuoteRepository(sqlDB, logger),
		Step:  repository.NewStepRepository(sqlDB, logger),
		Item:  repository.NewItemRepository(sqlDB, logger),
	}, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Workflow   *WorkflowConfig
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create logger adapter for services
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	policy := workflow.NewDiscountPolicy()
	if deps.Workflow != nil {
		policy = workflow.DiscountPolicy{
			CROThreshold:     deps.Workflow.CROThreshold,
			FinanceThreshold: deps.Workflow.FinanceThreshold,
		}
	}

	return &ServiceBundle{
		Quote: service.NewQuoteService(
			deps.Repos.Quote,
			deps.Repos.Item,
			deps.Repos.Step,
			deps.TxManager,
			serviceLogger,
		),
		Workflow: service.NewWorkflowService(
			deps.Repos.Quote,
			deps.Repos.Step,
			deps.Repos.Item,
			deps.TxManager,
			policy,
			deps.Dispatcher,
			serviceLogger,
		),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and registers the
// terminal-event notifier on it, so every quote.approved/rejected/
// terminated publish reaches at least one consumer.
// Returns dispatcher.Dispatcher implementation.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	bus := dispatcher.NewDispatcher(&dispatcherLoggerAdapter{logger: logger})
	notification.NewNotifier(logger).Register(bus)

	return bus, nil
}
