package drafts

import (
	"net/mail"
	"strings"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
)

const (
	defaultQuantity       = 1
	defaultWarrantyMonths = 12
)

func normalize(d *domain.ContractDraft) {
	d.Title = strings.TrimSpace(d.Title)
	d.ClientName = strings.TrimSpace(d.ClientName)
	d.ClientContactEmail = strings.TrimSpace(d.ClientContactEmail)
	if d.EquipmentQuantity == 0 {
		d.EquipmentQuantity = defaultQuantity
	}
	if d.WarrantyMonths == 0 {
		d.WarrantyMonths = defaultWarrantyMonths
	}
	if d.Clauses == nil {
		d.Clauses = []domain.Clause{}
	}
}

// Validate checks the editable content of a draft.
func Validate(d *domain.ContractDraft) error {
	if d == nil {
		return &contracts.ValidationError{Fields: []contracts.FieldError{{Field: "draft", Message: "is required"}}}
	}

	var fields []contracts.FieldError
	add := func(field, msg string) {
		fields = append(fields, contracts.FieldError{Field: field, Message: msg})
	}

	if d.Title == "" {
		add("title", "is required")
	}
	if d.ClientName == "" {
		add("clientName", "is required")
	}
	if !d.ContractType.Valid() {
		add("contractType", "must be one of sale, leasing, comodato, import, export")
	}
	if d.Value < 0 {
		add("value", "must not be negative")
	}
	if d.EquipmentQuantity < 1 {
		add("equipmentQuantity", "must be at least 1")
	}
	if d.DurationMonths < 0 {
		add("durationMonths", "must not be negative")
	}
	if d.WarrantyMonths < 0 {
		add("warrantyMonths", "must not be negative")
	}
	if d.ClientContactEmail != "" {
		if _, err := mail.ParseAddress(d.ClientContactEmail); err != nil {
			add("clientContactEmail", "must be an e-mail address")
		}
	}

	if len(fields) > 0 {
		return &contracts.ValidationError{Fields: fields}
	}
	return nil
}

func validateApprover(a domain.Approver) error {
	var fields []contracts.FieldError
	if strings.TrimSpace(a.Name) == "" {
		fields = append(fields, contracts.FieldError{Field: "name", Message: "is required"})
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		fields = append(fields, contracts.FieldError{Field: "email", Message: "must be an e-mail address"})
	}
	if len(fields) > 0 {
		return &contracts.ValidationError{Fields: fields}
	}
	return nil
}
