// Package container provides dependency injection and lifecycle management
// for the quote approval system following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow policy configuration
	Workflow WorkflowConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir is the path to migration files
	MigrationsDir string
}

// WorkflowConfig holds approval policy thresholds.
type WorkflowConfig struct {
	// CROThreshold is the discount percentage above which sales
	// leadership joins the chain
	CROThreshold float64

	// FinanceThreshold is the discount percentage above which finance
	// joins the chain
	FinanceThreshold float64
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/quotes.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsDir:   "migrations",
		},
		Workflow: WorkflowConfig{
			CROThreshold:     15.0,
			FinanceThreshold: 40.0,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Workflow.CROThreshold < 0 || c.Workflow.CROThreshold > 100 {
		return fmt.Errorf("workflow.cro_threshold must be between 0 and 100")
	}
	if c.Workflow.FinanceThreshold < 0 || c.Workflow.FinanceThreshold > 100 {
		return fmt.Errorf("workflow.finance_threshold must be between 0 and 100")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	return nil
}
