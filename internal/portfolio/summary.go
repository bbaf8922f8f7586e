package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

// TopStatesLimit caps the destination ranking.
const TopStatesLimit = 5

// Summary is the dashboard view of a contract portfolio.
type Summary struct {
	TotalContracts int          `json:"totalContracts"`
	TotalValue     domain.Money `json:"totalValue"`

	ByStatus        map[domain.Status]int `json:"byStatus"`
	ByOperation     []OperationTotal      `json:"byOperation"`
	TopDestinations []StateTotal          `json:"topDestinations"`

	RiskAlerts        int            `json:"riskAlerts"`
	OpportunityAlerts int            `json:"opportunityAlerts"`
	InfoAlerts        int            `json:"infoAlerts"`
	AlertsByCode      map[string]int `json:"alertsByCode"`
	AverageScore      float64        `json:"averageScore"`

	Expiring    []ExpiringContract `json:"expiring"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// OperationTotal aggregates contracts of one operation type.
type OperationTotal struct {
	OperationType domain.OperationType `json:"operationType"`
	Label         string               `json:"label"`
	Count         int                  `json:"count"`
	Value         domain.Money         `json:"value"`
}

// StateTotal aggregates contract value by destination state.
type StateTotal struct {
	State domain.State `json:"state"`
	Count int          `json:"count"`
	Value domain.Money `json:"value"`
}

// ExpiringContract is a contract close to its expiry date.
type ExpiringContract struct {
	ID             string      `json:"id"`
	ContractNumber string      `json:"contractNumber"`
	PartyName      string      `json:"partyName"`
	ExpiryDate     domain.Date `json:"expiryDate"`
	DaysLeft       int         `json:"daysLeft"`
}

// Summarize aggregates contracts into a Summary as of now.
func Summarize(ctx context.Context, analyzer Analyzer, contracts []*domain.Contract, now time.Time) *Summary {
	s := &Summary{
		ByStatus:     make(map[domain.Status]int),
		AlertsByCode: make(map[string]int),
		Expiring:     []ExpiringContract{},
		GeneratedAt:  now.UTC(),
	}

	byOp := make(map[domain.OperationType]*OperationTotal)
	byState := make(map[domain.State]*StateTotal)
	scoreSum := 0

	for _, c := range contracts {
		if c == nil {
			continue
		}
		s.TotalContracts++
		s.TotalValue += c.Value
		s.ByStatus[c.Status]++

		op, ok := byOp[c.OperationType]
		if !ok {
			op = &OperationTotal{OperationType: c.OperationType, Label: c.OperationType.Label()}
			byOp[c.OperationType] = op
		}
		op.Count++
		op.Value += c.Value

		st, ok := byState[c.DestinationState]
		if !ok {
			st = &StateTotal{State: c.DestinationState}
			byState[c.DestinationState] = st
		}
		st.Count++
		st.Value += c.Value

		a := analyzer.Analyze(ctx, c)
		s.RiskAlerts += a.RiskCount
		s.OpportunityAlerts += a.OpportunityCount
		s.InfoAlerts += a.InfoCount
		for _, alert := range a.Alerts {
			s.AlertsByCode[alert.Code]++
		}
		scoreSum += a.Score

		if days, ok := DaysUntilExpiry(c.ExpiryDate, now); ok && days >= 0 && days <= ExpiringWindowDays {
			s.Expiring = append(s.Expiring, ExpiringContract{
				ID:             c.ID,
				ContractNumber: c.ContractNumber,
				PartyName:      c.PartyName,
				ExpiryDate:     c.ExpiryDate,
				DaysLeft:       days,
			})
		}
	}

	if s.TotalContracts > 0 {
		s.AverageScore = float64(scoreSum) / float64(s.TotalContracts)
	}

	// Declaration order, unknown last
	s.ByOperation = make([]OperationTotal, 0, len(byOp))
	for _, op := range append(domain.OperationTypes(), domain.OperationUnknown) {
		if t, ok := byOp[op]; ok {
			s.ByOperation = append(s.ByOperation, *t)
		}
	}

	s.TopDestinations = make([]StateTotal, 0, len(byState))
	for _, st := range byState {
		s.TopDestinations = append(s.TopDestinations, *st)
	}
	sort.Slice(s.TopDestinations, func(i, j int) bool {
		a, b := s.TopDestinations[i], s.TopDestinations[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.State < b.State
	})
	if len(s.TopDestinations) > TopStatesLimit {
		s.TopDestinations = s.TopDestinations[:TopStatesLimit]
	}

	sort.SliceStable(s.Expiring, func(i, j int) bool {
		return s.Expiring[i].DaysLeft < s.Expiring[j].DaysLeft
	})

	return s
}
