package contracts

import (
	"strings"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/rules"
)

// FieldError describes one invalid contract field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a contract.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid contract: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Validate checks c before it is persisted. Drafts sent for analysis are
// never validated; the rule engine tolerates incomplete contracts.
func Validate(c *domain.Contract) error {
	if c == nil {
		return &ValidationError{Fields: []FieldError{{Field: "contract", Message: "is required"}}}
	}

	verr := &ValidationError{}
	if strings.TrimSpace(c.ContractNumber) == "" {
		verr.add("contractNumber", "is required")
	}
	if strings.TrimSpace(c.PartyName) == "" {
		verr.add("partyName", "is required")
	}
	if c.Value < 0 {
		verr.add("value", "must not be negative")
	}
	if !rules.ValidNCM(c.NCM) {
		verr.add("ncm", "must have exactly 8 digits")
	}
	if !c.OriginState.Valid() {
		verr.add("originState", "must be a Brazilian state code or OUTSIDE_BR")
	}
	if !c.DestinationState.Valid() {
		verr.add("destinationState", "must be a Brazilian state code or OUTSIDE_BR")
	}
	if !c.OperationType.Valid() {
		verr.add("operationType", "must be one of sale, leasing, comodato, import, export")
	}
	if c.Status != domain.StatusUnknown && !c.Status.Valid() {
		verr.add("status", "must be one of active, expiring, closed")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
