// Package rules provides the fiscal rule engine: the builtin rule table,
// the risk scorer and operator-defined extension rules in CEL or JsonLogic.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diegoholiveira/jsonlogic/v3"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/fiscalclm/clm/internal/domain"
)

// ErrInvalidRule is returned when an extension rule fails validation.
var ErrInvalidRule = errors.New("invalid rule")

// Engine evaluates the builtin table followed by the loaded extension rules.
// It is safe for concurrent use; rules can be hot-reloaded while evaluations run.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	ordered       []*CompiledRule
	logger        *slog.Logger
	now           func() time.Time
}

// CompiledRule holds a pre-compiled extension rule.
type CompiledRule struct {
	Config *domain.RuleConfig

	program cel.Program // DialectCEL
	logic   []byte      // DialectJSONLogic
}

// NewEngine creates a rule engine with no extension rules loaded.
func NewEngine(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Contract variables visible to extension rules
	env, err := cel.NewEnv(
		cel.Variable("operation_type", cel.StringType),
		cel.Variable("ncm", cel.StringType),
		cel.Variable("ncm_raw", cel.StringType),
		cel.Variable("origin_state", cel.StringType),
		cel.Variable("destination_state", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("value_cents", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("cross_state", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine, replacing any rule
// with the same ID.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules[cfg.ID] = compiled
	e.reorder()
	return nil
}

// LoadRules compiles and loads every enabled rule. Loading stops at the
// first invalid rule; rules loaded before it stay loaded.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		if err := e.LoadRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces all extension rules at once. If any enabled rule
// fails to compile the previous rule set is kept.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	newRules := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = newRules
	e.reorder()
	return nil
}

// UnloadRule removes an extension rule. It reports whether the rule was loaded.
func (e *Engine) UnloadRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.compiledRules[id]; !ok {
		return false
	}
	delete(e.compiledRules, id)
	e.reorder()
	return true
}

// reorder rebuilds the ID-ordered evaluation slice. Callers hold mu.
func (e *Engine) reorder() {
	ordered := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Config.ID < ordered[j].Config.ID
	})
	e.ordered = ordered
}

// RulesCount returns the number of loaded extension rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded extension rule configurations, ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.ordered))
	for _, compiled := range e.ordered {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Evaluate returns the builtin alerts for c followed by the alerts of every
// matching extension rule, ordered by rule ID. Extension rules that fail to
// evaluate are logged and skipped.
func (e *Engine) Evaluate(ctx context.Context, c *domain.Contract) []domain.FiscalAlert {
	alerts := Evaluate(c)
	if c == nil {
		return alerts
	}

	e.mu.RLock()
	ordered := e.ordered
	e.mu.RUnlock()

	if len(ordered) == 0 {
		return alerts
	}

	vars := Variables(c)
	var data []byte
	for _, rule := range ordered {
		var (
			matched bool
			err     error
		)
		switch rule.Config.Dialect {
		case domain.DialectJSONLogic:
			if data == nil {
				data, err = json.Marshal(vars)
				if err != nil {
					e.logger.Error("failed to encode rule variables", "error", err)
					return alerts
				}
			}
			matched, err = evalLogic(rule.logic, data)
		default:
			matched, err = evalCEL(ctx, rule.program, vars)
		}
		if err != nil {
			e.logger.Warn("extension rule evaluation failed",
				"rule_id", rule.Config.ID,
				"contract_id", c.ID,
				"error", err,
			)
			continue
		}
		if matched {
			alerts = append(alerts, rule.Config.Alert())
		}
	}
	return alerts
}

// Score returns the risk score of c including extension alerts.
func (e *Engine) Score(ctx context.Context, c *domain.Contract) int {
	return ScoreAlerts(c, e.Evaluate(ctx, c))
}

// Analyze evaluates c once and bundles alerts, counts and score.
func (e *Engine) Analyze(ctx context.Context, c *domain.Contract) *domain.Analysis {
	alerts := e.Evaluate(ctx, c)
	risk, opportunity, info := domain.CountAlerts(alerts)

	a := &domain.Analysis{
		Alerts:           alerts,
		Score:            ScoreAlerts(c, alerts),
		RiskCount:        risk,
		OpportunityCount: opportunity,
		InfoCount:        info,
		EvaluatedAt:      e.now().UTC(),
	}
	if c != nil {
		a.ContractID = c.ID
	}
	return a
}

// Close unloads every extension rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	e.ordered = nil
	return nil
}

// Variables returns the contract attributes exposed to extension rules.
func Variables(c *domain.Contract) map[string]any {
	return map[string]any{
		"operation_type":    c.OperationType.String(),
		"ncm":               NormalizeNCM(c.NCM),
		"ncm_raw":           c.NCM,
		"origin_state":      string(c.OriginState),
		"destination_state": string(c.DestinationState),
		"value":             c.Value.Float(),
		"value_cents":       c.Value.Cents(),
		"status":            c.Status.String(),
		"cross_state":       c.CrossState(),
	}
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: rule config is required", ErrInvalidRule)
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(cfg.Code) == "" || strings.TrimSpace(cfg.Message) == "" {
		return nil, fmt.Errorf("%w: rule %s: code and message are required", ErrInvalidRule, cfg.ID)
	}
	if IsBuiltinCode(cfg.Code) {
		return nil, fmt.Errorf("%w: rule %s: code %s is reserved by a builtin rule", ErrInvalidRule, cfg.ID, cfg.Code)
	}
	if !cfg.AlertType.Valid() {
		return nil, fmt.Errorf("%w: rule %s: unknown alert type %q", ErrInvalidRule, cfg.ID, cfg.AlertType)
	}
	if strings.TrimSpace(cfg.Expression) == "" {
		return nil, fmt.Errorf("%w: rule %s: expression is required", ErrInvalidRule, cfg.ID)
	}

	switch cfg.Dialect {
	case domain.DialectCEL, "":
		return e.compileCEL(cfg)
	case domain.DialectJSONLogic:
		return compileLogic(cfg)
	default:
		return nil, fmt.Errorf("%w: rule %s: unknown dialect %q", ErrInvalidRule, cfg.ID, cfg.Dialect)
	}
}

func (e *Engine) compileCEL(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", ErrInvalidRule, cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s", ErrInvalidRule, cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, program: program}, nil
}

func compileLogic(cfg *domain.RuleConfig) (*CompiledRule, error) {
	logic := []byte(cfg.Expression)
	if !json.Valid(logic) || !jsonlogic.IsValid(bytes.NewReader(logic)) {
		return nil, fmt.Errorf("%w: rule %s: expression is not valid JsonLogic", ErrInvalidRule, cfg.ID)
	}

	// A trial run on an empty contract catches rules that never yield a boolean.
	data, err := json.Marshal(Variables(&domain.Contract{}))
	if err != nil {
		return nil, err
	}
	if _, err := evalLogic(logic, data); err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, logic: logic}, nil
}

func evalCEL(ctx context.Context, program cel.Program, vars map[string]any) (bool, error) {
	out, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression yielded %s, want bool", out.Type().TypeName())
	}
	return bool(b), nil
}

func evalLogic(logic, data []byte) (bool, error) {
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(logic), bytes.NewReader(data), &out); err != nil {
		return false, err
	}
	switch res := strings.TrimSpace(out.String()); res {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expression yielded %s, want a boolean", res)
	}
}
