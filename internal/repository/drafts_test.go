package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

func testDraft(id string) *domain.ContractDraft {
	created := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	return &domain.ContractDraft{
		ID:                 id,
		Title:              "Locação de empilhadeiras " + id,
		ContractType:       domain.OperationLeasing,
		EquipmentCategory:  "Empilhadeira Elétrica",
		Brand:              "Linde",
		ClientName:         "Logística Paulista S.A.",
		ClientCNPJ:         "12.345.678/0001-90",
		ClientContactEmail: "compras@logpaulista.com.br",
		EquipmentQuantity:  4,
		Value:              domain.FromUnits(480_000),
		DurationMonths:     36,
		StartDate:          domain.NewDate(2025, 5, 1),
		WarrantyMonths:     12,
		Clauses: []domain.Clause{
			{ID: "cl-1", Title: "Objeto", Content: "Locação de 4 empilhadeiras.", Order: 1},
		},
		Status:     domain.DraftOpen,
		ShareToken: "token-" + id,
		CreatedBy:  domain.DefaultChangedBy,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestContractDrafts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	d := testDraft("d-001")
	if err := repo.CreateDraft(ctx, tenantID, d); err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	t.Run("GetDraft", func(t *testing.T) {
		got, err := repo.GetDraft(ctx, tenantID, "d-001")
		if err != nil {
			t.Fatalf("GetDraft failed: %v", err)
		}
		if got.Title != d.Title || got.ContractType != domain.OperationLeasing || got.Value != d.Value {
			t.Errorf("unexpected draft: %+v", got)
		}
		if got.StartDate != d.StartDate || got.Status != domain.DraftOpen {
			t.Errorf("unexpected start date or status: %v %v", got.StartDate, got.Status)
		}
		if len(got.Clauses) != 1 || got.Clauses[0].Title != "Objeto" {
			t.Errorf("unexpected clauses: %+v", got.Clauses)
		}
		if got.ApprovedBy == nil || len(got.ApprovedBy) != 0 {
			t.Errorf("expected an empty approver list, got %#v", got.ApprovedBy)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetDraft(ctx, "tenant-002", "d-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
		list, err := repo.ListDrafts(ctx, "tenant-002")
		if err != nil {
			t.Fatalf("ListDrafts failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no drafts for other tenant, got %d", len(list))
		}
	})

	t.Run("GetDraftByShareToken", func(t *testing.T) {
		got, err := repo.GetDraftByShareToken(ctx, "token-d-001")
		if err != nil {
			t.Fatalf("GetDraftByShareToken failed: %v", err)
		}
		if got.ID != "d-001" || got.TenantID != tenantID {
			t.Errorf("unexpected draft %s of tenant %s", got.ID, got.TenantID)
		}
		if _, err := repo.GetDraftByShareToken(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown token, got %v", err)
		}
		if _, err := repo.GetDraftByShareToken(ctx, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for empty token, got %v", err)
		}
	})

	t.Run("DuplicateShareToken", func(t *testing.T) {
		dup := testDraft("d-002")
		dup.ShareToken = "token-d-001"
		if err := repo.CreateDraft(ctx, tenantID, dup); err == nil {
			t.Error("expected unique share token violation")
		}
	})

	t.Run("ConditionalUpdate", func(t *testing.T) {
		pending := testDraft("d-001")
		pending.Status = domain.DraftPendingApproval
		pending.UpdatedAt = time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)
		if err := repo.UpdateDraft(ctx, tenantID, pending, domain.DraftOpen); err != nil {
			t.Fatalf("UpdateDraft failed: %v", err)
		}

		// A second writer still expecting an open draft loses
		stale := testDraft("d-001")
		stale.Title = "stale"
		err := repo.UpdateDraft(ctx, tenantID, stale, domain.DraftOpen)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		approved := testDraft("d-001")
		approved.Status = domain.DraftApproved
		approved.ApprovedBy = []domain.Approver{{
			Name:       "Marina Costa",
			Email:      "marina@logpaulista.com.br",
			ApprovedAt: time.Date(2025, 4, 4, 15, 0, 0, 0, time.UTC),
		}}
		if err := repo.UpdateDraft(ctx, tenantID, approved, domain.DraftPendingApproval); err != nil {
			t.Fatalf("UpdateDraft approve failed: %v", err)
		}

		got, err := repo.GetDraft(ctx, tenantID, "d-001")
		if err != nil {
			t.Fatalf("GetDraft failed: %v", err)
		}
		if got.Status != domain.DraftApproved || got.Title == "stale" {
			t.Errorf("unexpected draft after update: %+v", got)
		}
		if len(got.ApprovedBy) != 1 || got.ApprovedBy[0].Email != "marina@logpaulista.com.br" {
			t.Errorf("unexpected approvers: %+v", got.ApprovedBy)
		}

		missing := testDraft("d-404")
		if err := repo.UpdateDraft(ctx, tenantID, missing, domain.DraftOpen); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteDraft", func(t *testing.T) {
		if err := repo.DeleteDraft(ctx, "tenant-002", "d-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
		if err := repo.DeleteDraft(ctx, tenantID, "d-001"); err != nil {
			t.Fatalf("DeleteDraft failed: %v", err)
		}
		if _, err := repo.GetDraft(ctx, tenantID, "d-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}
