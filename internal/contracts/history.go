package contracts

import (
	"time"

	"github.com/google/uuid"

	"github.com/fiscalclm/clm/internal/domain"
)

// trackedFields are diffed on every update, in this order.
var trackedFields = []struct {
	name  string
	value func(*domain.Contract) string
}{
	{"contractNumber", func(c *domain.Contract) string { return c.ContractNumber }},
	{"partyName", func(c *domain.Contract) string { return c.PartyName }},
	{"value", func(c *domain.Contract) string { return c.Value.String() }},
	{"ncm", func(c *domain.Contract) string { return c.NCM }},
	{"originState", func(c *domain.Contract) string { return string(c.OriginState) }},
	{"destinationState", func(c *domain.Contract) string { return string(c.DestinationState) }},
	{"operationType", func(c *domain.Contract) string { return c.OperationType.String() }},
	{"status", func(c *domain.Contract) string { return c.Status.String() }},
	{"expiryDate", func(c *domain.Contract) string { return c.ExpiryDate.String() }},
}

// Diff returns one history entry per tracked field that differs between old and updated.
func Diff(old, updated *domain.Contract, changedBy string, at time.Time) []domain.ContractHistory {
	if changedBy == "" {
		changedBy = domain.DefaultChangedBy
	}

	var changes []domain.ContractHistory
	for _, f := range trackedFields {
		before, after := f.value(old), f.value(updated)
		if before == after {
			continue
		}
		changes = append(changes, domain.ContractHistory{
			ID:         uuid.New().String(),
			ContractID: updated.ID,
			Field:      f.name,
			OldValue:   before,
			NewValue:   after,
			ChangedAt:  at,
			ChangedBy:  changedBy,
		})
	}
	return changes
}
