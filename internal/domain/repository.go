// Package domain defines the core interfaces and types for the CLM service.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All contract methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Contract operations
	CreateContract(ctx context.Context, tenantID string, c *Contract) error
	GetContract(ctx context.Context, tenantID string, contractID string) (*Contract, error)
	ListContracts(ctx context.Context, tenantID string) ([]*Contract, error)

	// UpdateContract replaces the stored record and appends changes to the
	// history collection in the same transaction.
	UpdateContract(ctx context.Context, tenantID string, c *Contract, changes []ContractHistory) error
	DeleteContract(ctx context.Context, tenantID string, contractID string) error

	// Change history, newest first
	ListContractHistory(ctx context.Context, tenantID string, contractID string) ([]ContractHistory, error)

	// Extension rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// ListAllRuleConfigs includes disabled rules, which mask pack rules of the same ID.
	ListAllRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error

	// Contract drafts
	CreateDraft(ctx context.Context, tenantID string, d *ContractDraft) error
	GetDraft(ctx context.Context, tenantID string, draftID string) (*ContractDraft, error)
	ListDrafts(ctx context.Context, tenantID string) ([]*ContractDraft, error)

	// GetDraftByShareToken is the only lookup without a tenant; the token
	// itself grants access.
	GetDraftByShareToken(ctx context.Context, token string) (*ContractDraft, error)

	// UpdateDraft replaces a draft only while it is still in status from.
	UpdateDraft(ctx context.Context, tenantID string, d *ContractDraft, from DraftStatus) error
	DeleteDraft(ctx context.Context, tenantID string, draftID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDB"`
	PostgresSSLMode  string `mapstructure:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
