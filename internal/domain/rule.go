package domain

import "time"

// RuleDialect is the expression language of an extension rule.
type RuleDialect string

const (
	DialectCEL       RuleDialect = "cel"
	DialectJSONLogic RuleDialect = "jsonlogic"
)

// RuleConfig defines an operator-supplied fiscal rule evaluated after the
// builtin table. When Expression holds, the rule emits one alert built from
// AlertType, Code, Message and Impact.
type RuleConfig struct {
	ID          string `json:"id" yaml:"id"`
	TenantID    string `json:"tenantId,omitempty" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Version     string `json:"version" yaml:"version"`

	// Dialect selects the evaluator; empty means CEL
	Dialect    RuleDialect `json:"dialect" yaml:"dialect"`
	Expression string      `json:"expression" yaml:"expression"`

	// Alert emitted when the expression holds
	AlertType AlertType `json:"alertType" yaml:"alertType"`
	Code      string    `json:"code" yaml:"code"`
	Message   string    `json:"message" yaml:"message"`
	Impact    string    `json:"impact" yaml:"impact"`

	// Whether rule is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitzero" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitzero" yaml:"-"`
}

// Alert builds the alert this rule emits.
func (r *RuleConfig) Alert() FiscalAlert {
	return FiscalAlert{
		Type:    r.AlertType,
		Code:    r.Code,
		Message: r.Message,
		Impact:  r.Impact,
	}
}

// RulePack is a YAML document of extension rules.
type RulePack struct {
	Version string        `yaml:"version"`
	Rules   []*RuleConfig `yaml:"rules"`
}
