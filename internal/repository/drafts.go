package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fiscalclm/clm/internal/domain"
)

const draftColumns = `
	id, tenant_id, title, contract_type, equipment_category, brand,
	client_name, client_cnpj, client_address,
	client_contact_name, client_contact_email, client_contact_phone,
	equipment_description, equipment_quantity, value_cents, payment_terms,
	duration_months, start_date, warranty_months, clauses, custom_terms,
	status, share_token, approved_by, rejection_reason,
	created_by, created_at, updated_at`

// CreateDraft stores a new draft. ID, share token and timestamps are set by the caller.
func (r *SQLRepository) CreateDraft(ctx context.Context, tenantID string, d *domain.ContractDraft) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if d == nil || d.ID == "" || d.ShareToken == "" {
		return fmt.Errorf("%w: draft id and share token are required", ErrInvalidInput)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	clauses, approvers, err := encodeDraftLists(d)
	if err != nil {
		return err
	}

	query := `INSERT INTO contract_drafts (` + draftColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.Title, d.ContractType.String(), d.EquipmentCategory, d.Brand,
		d.ClientName, d.ClientCNPJ, d.ClientAddress,
		d.ClientContactName, d.ClientContactEmail, d.ClientContactPhone,
		d.EquipmentDescription, d.EquipmentQuantity, d.Value.Cents(), d.PaymentTerms,
		d.DurationMonths, nullDate(d.StartDate), d.WarrantyMonths, clauses, d.CustomTerms,
		d.Status.String(), d.ShareToken, approvers, d.RejectionReason,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	d.TenantID = tenantID
	return nil
}

// GetDraft retrieves a draft by ID with tenant isolation.
func (r *SQLRepository) GetDraft(ctx context.Context, tenantID string, draftID string) (*domain.ContractDraft, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + draftColumns + ` FROM contract_drafts WHERE tenant_id = ? AND id = ?`
	return r.getDraft(ctx, query, tenantID, draftID)
}

// GetDraftByShareToken retrieves the draft a share link points to, whatever its tenant.
func (r *SQLRepository) GetDraftByShareToken(ctx context.Context, token string) (*domain.ContractDraft, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	query := `SELECT ` + draftColumns + ` FROM contract_drafts WHERE share_token = ?`
	return r.getDraft(ctx, query, token)
}

func (r *SQLRepository) getDraft(ctx context.Context, query string, args ...any) (*domain.ContractDraft, error) {
	d, err := scanDraft(r.db.QueryRowContext(ctx, r.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDrafts retrieves all drafts of a tenant, newest first.
func (r *SQLRepository) ListDrafts(ctx context.Context, tenantID string) ([]*domain.ContractDraft, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + draftColumns + ` FROM contract_drafts
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := make([]*domain.ContractDraft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}

	return drafts, rows.Err()
}

// UpdateDraft replaces every mutable column of the draft, provided its stored
// status is still from. A draft that moved on in the meantime yields ErrConflict.
func (r *SQLRepository) UpdateDraft(ctx context.Context, tenantID string, d *domain.ContractDraft, from domain.DraftStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: draft id is required", ErrInvalidInput)
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = r.now()
	}

	clauses, approvers, err := encodeDraftLists(d)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE contract_drafts SET
				title = ?, contract_type = ?, equipment_category = ?, brand = ?,
				client_name = ?, client_cnpj = ?, client_address = ?,
				client_contact_name = ?, client_contact_email = ?, client_contact_phone = ?,
				equipment_description = ?, equipment_quantity = ?, value_cents = ?,
				payment_terms = ?, duration_months = ?, start_date = ?, warranty_months = ?,
				clauses = ?, custom_terms = ?, status = ?, approved_by = ?,
				rejection_reason = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ? AND status = ?
		`
		result, err := tx.ExecContext(ctx, r.rebind(query),
			d.Title, d.ContractType.String(), d.EquipmentCategory, d.Brand,
			d.ClientName, d.ClientCNPJ, d.ClientAddress,
			d.ClientContactName, d.ClientContactEmail, d.ClientContactPhone,
			d.EquipmentDescription, d.EquipmentQuantity, d.Value.Cents(),
			d.PaymentTerms, d.DurationMonths, nullDate(d.StartDate), d.WarrantyMonths,
			clauses, d.CustomTerms, d.Status.String(), approvers,
			d.RejectionReason, d.UpdatedAt,
			tenantID, d.ID, from.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update draft: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx,
			r.rebind(`SELECT status FROM contract_drafts WHERE tenant_id = ? AND id = ?`),
			tenantID, d.ID,
		).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: draft is %s", ErrConflict, status)
	})
}

// DeleteDraft removes a draft.
func (r *SQLRepository) DeleteDraft(ctx context.Context, tenantID string, draftID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM contract_drafts WHERE tenant_id = ? AND id = ?`),
		tenantID, draftID,
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
}

func encodeDraftLists(d *domain.ContractDraft) (clauses, approvers string, err error) {
	c := d.Clauses
	if c == nil {
		c = []domain.Clause{}
	}
	a := d.ApprovedBy
	if a == nil {
		a = []domain.Approver{}
	}

	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode clauses: %w", err)
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode approvers: %w", err)
	}
	return string(cb), string(ab), nil
}

func scanDraft(s scanner) (*domain.ContractDraft, error) {
	var (
		d                    domain.ContractDraft
		contractType, status string
		cents                int64
		startDate            sql.NullString
		clauses, approvers   string
	)

	if err := s.Scan(
		&d.ID, &d.TenantID, &d.Title, &contractType, &d.EquipmentCategory, &d.Brand,
		&d.ClientName, &d.ClientCNPJ, &d.ClientAddress,
		&d.ClientContactName, &d.ClientContactEmail, &d.ClientContactPhone,
		&d.EquipmentDescription, &d.EquipmentQuantity, &cents, &d.PaymentTerms,
		&d.DurationMonths, &startDate, &d.WarrantyMonths, &clauses, &d.CustomTerms,
		&status, &d.ShareToken, &approvers, &d.RejectionReason,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.Value = domain.Money(cents)

	var err error
	if d.ContractType, err = domain.ParseOperationType(contractType); err != nil {
		return nil, fmt.Errorf("draft %s: %w", d.ID, err)
	}
	if d.Status, err = domain.ParseDraftStatus(status); err != nil {
		return nil, fmt.Errorf("draft %s: %w", d.ID, err)
	}
	if startDate.Valid {
		if d.StartDate, err = domain.ParseDate(startDate.String); err != nil {
			return nil, fmt.Errorf("draft %s: %w", d.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(clauses), &d.Clauses); err != nil {
		return nil, fmt.Errorf("draft %s: clauses: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(approvers), &d.ApprovedBy); err != nil {
		return nil, fmt.Errorf("draft %s: approvers: %w", d.ID, err)
	}

	return &d, nil
}
