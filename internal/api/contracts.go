package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/export"
	"github.com/fiscalclm/clm/internal/portfolio"
)

// ExportPrefix is the download name prefix of CSV exports.
const ExportPrefix = "contratos"

// ParseFilter reads a portfolio filter from query parameters:
// search, status, operationType, hasRisk and hasOpportunity.
func ParseFilter(q url.Values) (portfolio.Filter, error) {
	f := portfolio.Filter{Search: q.Get("search")}

	var err error
	if f.Status, err = domain.ParseStatus(q.Get("status")); err != nil {
		return f, err
	}
	if f.OperationType, err = domain.ParseOperationType(q.Get("operationType")); err != nil {
		return f, err
	}
	if f.HasRisk, err = parseTriState(q, "hasRisk"); err != nil {
		return f, err
	}
	if f.HasOpportunity, err = parseTriState(q, "hasOpportunity"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTriState(q url.Values, key string) (*bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &v, nil
}

// filtered loads the tenant's contracts and applies the query filter.
func (h *Handler) filtered(w http.ResponseWriter, r *http.Request) ([]portfolio.Item, bool) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	list, err := h.contracts.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.serviceError(w, r, err)
		return nil, false
	}
	return portfolio.Apply(r.Context(), h.engine, list, f), true
}

// ListContracts returns the filtered contracts, each with its analysis.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	items, ok := h.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contracts": items,
		"count":     len(items),
	})
}

// ExportContracts streams the filtered contracts as CSV.
func (h *Handler) ExportContracts(w http.ResponseWriter, r *http.Request) {
	items, ok := h.filtered(w, r)
	if !ok {
		return
	}

	now := h.now()
	name := export.Filename(ExportPrefix, domain.NewDate(now.Year(), now.Month(), now.Day()))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)

	if err := export.WriteCSV(w, portfolio.Contracts(items)); err != nil {
		slog.Error("failed to write CSV export", "error", err)
	}
}

// CreateContract validates and stores a contract.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var c domain.Contract
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}

	created, err := h.contracts.Create(r.Context(), GetTenantID(r.Context()), &c)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetContract returns a contract with its history.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateContract replaces a contract. X-User names the editor in history.
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	var c domain.Contract
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body: "+err.Error())
		return
	}
	c.ID = chi.URLParam(r, "id")

	updated, err := h.contracts.Update(r.Context(), GetTenantID(r.Context()), &c, r.Header.Get(UserHeader))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteContract removes a contract and its history.
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	if err := h.contracts.Delete(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContractAnalysis returns the alerts and score of a stored contract.
func (h *Handler) ContractAnalysis(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Analyze(r.Context(), c))
}

// ContractHistory returns the change log of a contract, newest first.
func (h *Handler) ContractHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.contracts.History(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"count":   len(history),
	})
}

// Dashboard returns the portfolio summary of the tenant.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	list, err := h.contracts.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio.Summarize(r.Context(), h.engine, list, h.now()))
}

// serviceError maps contract service errors to HTTP responses.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *contracts.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, contracts.ErrNotFound):
		writeError(w, http.StatusNotFound, "contract not found")
	default:
		slog.Error("contract operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
