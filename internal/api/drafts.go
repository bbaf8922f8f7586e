package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/drafts"
)

// ListDrafts returns the tenant's drafts, newest first.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	list, err := h.drafts.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drafts": list,
		"count":  len(list),
	})
}

// CreateDraft stores a new draft. X-User names its author.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var d domain.ContractDraft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	created, err := h.drafts.Create(r.Context(), GetTenantID(r.Context()), &d, r.Header.Get(UserHeader))
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateDraft replaces the content of an open or rejected draft.
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var d domain.ContractDraft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}
	d.ID = chi.URLParam(r, "id")

	updated, err := h.drafts.Update(r.Context(), GetTenantID(r.Context()), &d)
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.draftError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitDraft sends a draft out for approval.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Submit(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RejectDraftRequest is the body of the reject endpoints.
type RejectDraftRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) ApproveDraft(w http.ResponseWriter, r *http.Request) {
	var approver domain.Approver
	if err := decodeJSON(w, r, &approver); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	d, err := h.drafts.Approve(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), approver)
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) RejectDraft(w http.ResponseWriter, r *http.Request) {
	var req RejectDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	d, err := h.drafts.Reject(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetSharedDraft serves the public view of a share link. No tenant header is needed.
func (h *Handler) GetSharedDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.GetShared(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ApproveSharedDraft records an external approval through a share link.
func (h *Handler) ApproveSharedDraft(w http.ResponseWriter, r *http.Request) {
	var approver domain.Approver
	if err := decodeJSON(w, r, &approver); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	d, err := h.drafts.ApproveShared(r.Context(), chi.URLParam(r, "token"), approver)
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RejectSharedDraft records an external rejection through a share link.
func (h *Handler) RejectSharedDraft(w http.ResponseWriter, r *http.Request) {
	var req RejectDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	d, err := h.drafts.RejectShared(r.Context(), chi.URLParam(r, "token"), req.Reason)
	if err != nil {
		h.draftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// draftError maps draft service errors to HTTP responses.
func (h *Handler) draftError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *contracts.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, drafts.ErrNotFound):
		writeError(w, http.StatusNotFound, "draft not found")
	case errors.Is(err, drafts.ErrInvalidTransition),
		errors.Is(err, drafts.ErrLocked),
		errors.Is(err, drafts.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("draft operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
