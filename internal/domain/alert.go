package domain

import "time"

// AlertType classifies a fiscal alert.
type AlertType string

const (
	AlertOpportunity AlertType = "Opportunity"
	AlertRisk        AlertType = "Risk"
	AlertInfo        AlertType = "Info"
)

// Valid reports whether t is one of the three alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertOpportunity, AlertRisk, AlertInfo:
		return true
	}
	return false
}

// FiscalAlert is a single finding produced by the rule engine.
// It is a pure value, recomputed on every evaluation.
type FiscalAlert struct {
	Type    AlertType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Impact  string    `json:"impact"`
}

// Analysis bundles the alerts and risk score of one contract.
type Analysis struct {
	ContractID       string        `json:"contractId,omitempty"`
	Alerts           []FiscalAlert `json:"alerts"`
	Score            int           `json:"score"`
	RiskCount        int           `json:"riskCount"`
	OpportunityCount int           `json:"opportunityCount"`
	InfoCount        int           `json:"infoCount"`
	EvaluatedAt      time.Time     `json:"evaluatedAt"`
}

// HasRisk reports whether at least one Risk alert fired.
func (a *Analysis) HasRisk() bool {
	return a.RiskCount > 0
}

// HasOpportunity reports whether at least one Opportunity alert fired.
func (a *Analysis) HasOpportunity() bool {
	return a.OpportunityCount > 0
}

// CountAlerts tallies alerts by type.
func CountAlerts(alerts []FiscalAlert) (risk, opportunity, info int) {
	for _, a := range alerts {
		switch a.Type {
		case AlertRisk:
			risk++
		case AlertOpportunity:
			opportunity++
		case AlertInfo:
			info++
		}
	}
	return risk, opportunity, info
}
