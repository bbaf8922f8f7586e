package repository

// Schema definitions for the CLM database.
// Compatible with both SQLite and PostgreSQL.

// Money is stored as integer centavos; enums as their canonical names.
const schemaContracts = `
CREATE TABLE IF NOT EXISTS contracts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    contract_number TEXT NOT NULL,
    party_name TEXT NOT NULL,
    value_cents BIGINT NOT NULL DEFAULT 0,
    ncm TEXT NOT NULL DEFAULT '',
    origin_state TEXT NOT NULL DEFAULT '',
    destination_state TEXT NOT NULL DEFAULT '',
    operation_type TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    expiry_date TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contracts_tenant ON contracts(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_contracts_number ON contracts(tenant_id, contract_number);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(tenant_id, status);
`

const schemaContractHistory = `
CREATE TABLE IF NOT EXISTS contract_history (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    contract_id TEXT NOT NULL,
    field TEXT NOT NULL,
    old_value TEXT NOT NULL DEFAULT '',
    new_value TEXT NOT NULL DEFAULT '',
    changed_at TIMESTAMP NOT NULL,
    changed_by TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contract_history_contract ON contract_history(tenant_id, contract_id, changed_at);
`

// schemaRuleConfigs holds extension rules. Rules shared by every tenant
// are stored under tenant_id '*'.
const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    dialect TEXT NOT NULL DEFAULT 'cel',
    expression TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    code TEXT NOT NULL,
    message TEXT NOT NULL,
    impact TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// Clauses and approvers are JSON arrays in TEXT columns.
const schemaContractDrafts = `
CREATE TABLE IF NOT EXISTS contract_drafts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    title TEXT NOT NULL,
    contract_type TEXT NOT NULL DEFAULT '',
    equipment_category TEXT NOT NULL DEFAULT '',
    brand TEXT NOT NULL DEFAULT '',
    client_name TEXT NOT NULL,
    client_cnpj TEXT NOT NULL DEFAULT '',
    client_address TEXT NOT NULL DEFAULT '',
    client_contact_name TEXT NOT NULL DEFAULT '',
    client_contact_email TEXT NOT NULL DEFAULT '',
    client_contact_phone TEXT NOT NULL DEFAULT '',
    equipment_description TEXT NOT NULL DEFAULT '',
    equipment_quantity INTEGER NOT NULL DEFAULT 1,
    value_cents BIGINT NOT NULL DEFAULT 0,
    payment_terms TEXT NOT NULL DEFAULT '',
    duration_months INTEGER NOT NULL DEFAULT 0,
    start_date TEXT,
    warranty_months INTEGER NOT NULL DEFAULT 12,
    clauses TEXT NOT NULL DEFAULT '[]',
    custom_terms TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    share_token TEXT NOT NULL UNIQUE,
    approved_by TEXT NOT NULL DEFAULT '[]',
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contract_drafts_tenant ON contract_drafts(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaContracts,
		schemaContractHistory,
		schemaRuleConfigs,
		schemaContractDrafts,
	}
}
