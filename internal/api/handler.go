package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/drafts"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/repository"
	"github.com/fiscalclm/clm/internal/rules"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	contracts *contracts.Service
	drafts    *drafts.Service
	metrics   *metrics.Collector
	packRules []*domain.RuleConfig
	version   string
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		contracts: deps.Contracts,
		drafts:    deps.Drafts,
		metrics:   deps.Metrics,
		packRules: deps.PackRules,
		version:   deps.Version,
		now:       time.Now,
	}
}

// Health reports the state of the repository, cache and bus.
// The service stays "healthy" only when every dependency answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// DraftRequest is the body of POST /analyze. Every field is optional and
// unparseable values are treated as absent, so half-filled forms still
// get a preview.
type DraftRequest struct {
	ContractNumber   string          `json:"contractNumber"`
	PartyName        string          `json:"partyName"`
	Value            json.RawMessage `json:"value"`
	NCM              string          `json:"ncm"`
	OriginState      string          `json:"originState"`
	DestinationState string          `json:"destinationState"`
	OperationType    string          `json:"operationType"`
	Status           string          `json:"status"`
	ExpiryDate       string          `json:"expiryDate"`
}

// Contract converts the draft leniently.
func (d DraftRequest) Contract() *domain.Contract {
	c := &domain.Contract{
		ContractNumber:   d.ContractNumber,
		PartyName:        d.PartyName,
		NCM:              d.NCM,
		OriginState:      domain.NormalizeState(d.OriginState),
		DestinationState: domain.NormalizeState(d.DestinationState),
	}
	if len(d.Value) > 0 {
		var v domain.Money
		if err := v.UnmarshalJSON(d.Value); err == nil {
			c.Value = v
		}
	}
	c.OperationType, _ = domain.ParseOperationType(d.OperationType)
	c.Status, _ = domain.ParseStatus(d.Status)
	c.ExpiryDate, _ = domain.ParseDate(d.ExpiryDate)
	return c
}

// Analyze evaluates an unsaved draft and returns its alerts and score.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	start := time.Now()
	analysis := h.engine.Analyze(r.Context(), req.Contract())
	h.metrics.RecordAnalysis(analysis, time.Since(start))

	writeJSON(w, http.StatusOK, analysis)
}

// builtinRuleView is the listing form of a builtin rule.
type builtinRuleView struct {
	Code        string           `json:"code"`
	Type        domain.AlertType `json:"type"`
	Message     string           `json:"message"`
	Impact      string           `json:"impact"`
	Description string           `json:"description"`
}

// ListRules returns the builtin table followed by the loaded extension rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	builtin := rules.BuiltinRules()
	views := make([]builtinRuleView, len(builtin))
	for i, rule := range builtin {
		views[i] = builtinRuleView{
			Code:        rule.Code,
			Type:        rule.Type,
			Message:     rule.Message,
			Impact:      rule.Impact,
			Description: rule.Description,
		}
	}
	extensions := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"builtin":    views,
		"extensions": extensions,
		"count":      len(views) + len(extensions),
	})
}

// CreateRuleRequest is the request body for creating an extension rule.
type CreateRuleRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Version     string             `json:"version,omitempty"`
	Dialect     domain.RuleDialect `json:"dialect,omitempty"`
	Expression  string             `json:"expression"`
	AlertType   domain.AlertType   `json:"alertType"`
	Code        string             `json:"code"`
	Message     string             `json:"message"`
	Impact      string             `json:"impact,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

// CreateRule validates an extension rule, stores it globally and loads it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	now := h.now().UTC()
	cfg := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    domain.AllTenants,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Dialect:     req.Dialect,
		Expression:  req.Expression,
		AlertType:   req.AlertType,
		Code:        req.Code,
		Message:     req.Message,
		Impact:      req.Impact,
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Dialect == "" {
		cfg.Dialect = domain.DialectCEL
	}

	if err := h.engine.ValidateRule(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, domain.AllTenants, cfg); err != nil {
			slog.Error("failed to save rule config", "id", cfg.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return
		}
	}
	if cfg.Enabled {
		if err := h.engine.LoadRule(cfg); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	slog.Info("rule created", "id", cfg.ID, "code", cfg.Code, "dialect", cfg.Dialect)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    cfg,
		"message": "rule created and loaded",
	})
}

// DeleteRule disables an extension rule and reloads the engine. A rule that
// only exists in the pack is disabled by storing a disabled copy of it.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	err := h.repo.DeleteRuleConfig(ctx, domain.AllTenants, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		err = h.disablePackRule(ctx, ruleID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	count, err := h.ReloadRulesFromStore(ctx)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
		writeError(w, http.StatusInternalServerError, "rule disabled but reload failed: "+err.Error())
		return
	}

	slog.Info("rule disabled", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rule disabled and engine reloaded",
		"count":   count,
	})
}

// disablePackRule masks the pack rule ruleID with a disabled stored copy.
// It returns repository.ErrNotFound when no enabled pack rule has that ID
// or a stored copy already masks it.
func (h *Handler) disablePackRule(ctx context.Context, ruleID string) error {
	var pack *domain.RuleConfig
	for _, rule := range h.packRules {
		if rule != nil && rule.ID == ruleID && rule.Enabled {
			pack = rule
		}
	}
	if pack == nil {
		return repository.ErrNotFound
	}

	stored, err := h.repo.ListAllRuleConfigs(ctx, domain.AllTenants)
	if err != nil {
		return err
	}
	for _, rule := range stored {
		if rule.ID == ruleID {
			return repository.ErrNotFound
		}
	}

	masked := *pack
	masked.Enabled = false
	return h.repo.SaveRuleConfig(ctx, domain.AllTenants, &masked)
}

// ReloadRules reloads extension rules from the pack file and the store.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	count, err := h.ReloadRulesFromStore(r.Context())
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// ReloadRulesFromStore swaps the engine's extension rules for the pack
// rules merged with the stored rules. A disabled stored rule hides the pack
// rule with the same ID. On error the old set stays.
func (h *Handler) ReloadRulesFromStore(ctx context.Context) (int, error) {
	var stored []*domain.RuleConfig
	if h.repo != nil {
		var err error
		stored, err = h.repo.ListAllRuleConfigs(ctx, domain.AllTenants)
		if err != nil {
			h.metrics.RecordRuleReload(0, err)
			return 0, err
		}
	}

	merged := rules.Merge(h.packRules, stored)
	if err := h.engine.ReloadRules(merged); err != nil {
		h.metrics.RecordRuleReload(0, err)
		return 0, err
	}

	count := h.engine.RulesCount()
	h.metrics.RecordRuleReload(count, nil)
	return count, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
