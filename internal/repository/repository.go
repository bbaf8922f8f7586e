// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a conditional update finds the record
	// in another state.
	ErrConflict = errors.New("record changed concurrently")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var _ domain.Repository = (*SQLRepository)(nil)

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite keeps its single connection
	if cfg.Driver == "postgres" {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const contractColumns = `
	id, tenant_id, contract_number, party_name, value_cents, ncm,
	origin_state, destination_state, operation_type, status, expiry_date,
	created_at, updated_at`

// CreateContract stores a new contract with tenant isolation.
// ID and timestamps must already be set by the caller.
func (r *SQLRepository) CreateContract(ctx context.Context, tenantID string, c *domain.Contract) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: contract id is required", ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	query := `INSERT INTO contracts (` + contractColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.ContractNumber, c.PartyName, c.Value.Cents(), c.NCM,
		string(c.OriginState), string(c.DestinationState),
		c.OperationType.String(), c.Status.String(), nullDate(c.ExpiryDate),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	c.TenantID = tenantID
	return nil
}

// GetContract retrieves a contract by ID with tenant isolation.
// History is not loaded; see ListContractHistory.
func (r *SQLRepository) GetContract(ctx context.Context, tenantID string, contractID string) (*domain.Contract, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + contractColumns + ` FROM contracts WHERE tenant_id = ? AND id = ?`

	c, err := scanContract(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, contractID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContracts retrieves all contracts of a tenant, newest first.
func (r *SQLRepository) ListContracts(ctx context.Context, tenantID string) ([]*domain.Contract, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE tenant_id = ?
		ORDER BY created_at DESC, contract_number`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := make([]*domain.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}

	return contracts, rows.Err()
}

// UpdateContract replaces the stored contract and appends changes to its
// history in a single transaction.
func (r *SQLRepository) UpdateContract(ctx context.Context, tenantID string, c *domain.Contract, changes []domain.ContractHistory) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: contract id is required", ErrInvalidInput)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = r.now()
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE contracts SET
				contract_number = ?, party_name = ?, value_cents = ?, ncm = ?,
				origin_state = ?, destination_state = ?, operation_type = ?,
				status = ?, expiry_date = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?
		`
		result, err := tx.ExecContext(ctx, r.rebind(query),
			c.ContractNumber, c.PartyName, c.Value.Cents(), c.NCM,
			string(c.OriginState), string(c.DestinationState), c.OperationType.String(),
			c.Status.String(), nullDate(c.ExpiryDate), c.UpdatedAt,
			tenantID, c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		insert := r.rebind(`
			INSERT INTO contract_history (
				id, tenant_id, contract_id, field, old_value, new_value, changed_at, changed_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		for _, h := range changes {
			if h.ID == "" {
				return fmt.Errorf("%w: history id is required", ErrInvalidInput)
			}
			if _, err := tx.ExecContext(ctx, insert,
				h.ID, tenantID, c.ID, h.Field, h.OldValue, h.NewValue, h.ChangedAt, h.ChangedBy,
			); err != nil {
				return fmt.Errorf("failed to insert history: %w", err)
			}
		}
		return nil
	})
}

// DeleteContract removes a contract and its history.
func (r *SQLRepository) DeleteContract(ctx context.Context, tenantID string, contractID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM contract_history WHERE tenant_id = ? AND contract_id = ?`),
			tenantID, contractID,
		); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM contracts WHERE tenant_id = ? AND id = ?`),
			tenantID, contractID,
		)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListContractHistory returns the change history of a contract, newest first.
func (r *SQLRepository) ListContractHistory(ctx context.Context, tenantID string, contractID string) ([]domain.ContractHistory, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, contract_id, field, old_value, new_value, changed_at, changed_by
		FROM contract_history
		WHERE tenant_id = ? AND contract_id = ?
		ORDER BY changed_at DESC, field
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ContractHistory, 0)
	for rows.Next() {
		var h domain.ContractHistory
		if err := rows.Scan(
			&h.ID, &h.ContractID, &h.Field, &h.OldValue, &h.NewValue, &h.ChangedAt, &h.ChangedBy,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// SaveRuleConfig upserts an extension rule with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	dialect := rule.Dialect
	if dialect == "" {
		dialect = domain.DialectCEL
	}

	now := r.now()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, dialect, expression,
			alert_type, code, message, impact, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			dialect = excluded.dialect,
			expression = excluded.expression,
			alert_type = excluded.alert_type,
			code = excluded.code,
			message = excluded.message,
			impact = excluded.impact,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		string(dialect), rule.Expression, string(rule.AlertType),
		rule.Code, rule.Message, rule.Impact, enabled,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule config: %w", err)
	}
	rule.TenantID = tenantID
	return nil
}

const ruleColumns = `
	id, tenant_id, name, description, version, dialect, expression,
	alert_type, code, message, impact, enabled, created_at, updated_at`

// GetRuleConfig retrieves an enabled rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListRuleConfigs retrieves all enabled rule configurations for a tenant, ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	return r.listRuleConfigs(ctx, tenantID, true)
}

// ListAllRuleConfigs retrieves enabled and disabled rule configurations, ordered by ID.
func (r *SQLRepository) ListAllRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	return r.listRuleConfigs(ctx, tenantID, false)
}

func (r *SQLRepository) listRuleConfigs(ctx context.Context, tenantID string, enabledOnly bool) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE tenant_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*domain.RuleConfig, 0)
	for rows.Next() {
		cfg, err := scanRuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE rule_configs
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), r.now(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(s scanner) (*domain.Contract, error) {
	var (
		c                   domain.Contract
		cents               int64
		origin, destination string
		operation, status   string
		expiry              sql.NullString
	)

	if err := s.Scan(
		&c.ID, &c.TenantID, &c.ContractNumber, &c.PartyName, &cents, &c.NCM,
		&origin, &destination, &operation, &status, &expiry,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Value = domain.Money(cents)
	c.OriginState = domain.State(origin)
	c.DestinationState = domain.State(destination)

	var err error
	if c.OperationType, err = domain.ParseOperationType(operation); err != nil {
		return nil, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if c.Status, err = domain.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if expiry.Valid {
		if c.ExpiryDate, err = domain.ParseDate(expiry.String); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
	}

	return &c, nil
}

func scanRuleConfig(s scanner) (*domain.RuleConfig, error) {
	var (
		cfg                 domain.RuleConfig
		description, impact sql.NullString
		dialect, alertType  string
		enabled             int
	)

	if err := s.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description, &cfg.Version, &dialect, &cfg.Expression,
		&alertType, &cfg.Code, &cfg.Message, &impact, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Impact = impact.String
	cfg.Dialect = domain.RuleDialect(dialect)
	cfg.AlertType = domain.AlertType(alertType)
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

func nullDate(d domain.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
