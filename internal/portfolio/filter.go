// Package portfolio filters and aggregates contracts together with their
// fiscal analysis for list views and the dashboard.
package portfolio

import (
	"context"
	"strings"

	"github.com/fiscalclm/clm/internal/domain"
)

// Analyzer computes the fiscal analysis of a contract. *rules.Engine satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, c *domain.Contract) *domain.Analysis
}

// Filter selects contracts for list views. Zero fields do not filter.
type Filter struct {
	// Search matches contract number or party name, case-insensitively
	Search        string
	Status        domain.Status
	OperationType domain.OperationType

	// HasRisk and HasOpportunity are tri-state: nil ignores the alert
	// type, true requires at least one alert of it, false excludes it.
	HasRisk        *bool
	HasOpportunity *bool
}

// IsZero reports whether the filter selects every contract.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Search) == "" &&
		f.Status == domain.StatusUnknown &&
		f.OperationType == domain.OperationUnknown &&
		f.HasRisk == nil && f.HasOpportunity == nil
}

// needsAnalysis reports whether matching depends on the alert list.
func (f Filter) needsAnalysis() bool {
	return f.HasRisk != nil || f.HasOpportunity != nil
}

// Match reports whether c, with its analysis a, passes the filter.
// a may be nil when the filter does not look at alerts.
func (f Filter) Match(c *domain.Contract, a *domain.Analysis) bool {
	if c == nil {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(c.ContractNumber), q) &&
			!strings.Contains(strings.ToLower(c.PartyName), q) {
			return false
		}
	}
	if f.Status != domain.StatusUnknown && c.Status != f.Status {
		return false
	}
	if f.OperationType != domain.OperationUnknown && c.OperationType != f.OperationType {
		return false
	}
	if f.needsAnalysis() {
		if a == nil {
			return false
		}
		if f.HasRisk != nil && a.HasRisk() != *f.HasRisk {
			return false
		}
		if f.HasOpportunity != nil && a.HasOpportunity() != *f.HasOpportunity {
			return false
		}
	}
	return true
}

// Item is a contract paired with its analysis.
type Item struct {
	Contract *domain.Contract `json:"contract"`
	Analysis *domain.Analysis `json:"analysis"`
}

// Apply analyzes every contract and returns those that pass f, in input order.
func Apply(ctx context.Context, analyzer Analyzer, contracts []*domain.Contract, f Filter) []Item {
	items := make([]Item, 0, len(contracts))
	for _, c := range contracts {
		if c == nil {
			continue
		}
		a := analyzer.Analyze(ctx, c)
		if f.Match(c, a) {
			items = append(items, Item{Contract: c, Analysis: a})
		}
	}
	return items
}

// Contracts strips the analysis from items.
func Contracts(items []Item) []*domain.Contract {
	out := make([]*domain.Contract, len(items))
	for i, it := range items {
		out[i] = it.Contract
	}
	return out
}
