package rules

import (
	"github.com/fiscalclm/clm/internal/domain"
)

// Risk score weights.
const (
	baseScore        = 50
	riskWeight       = 15
	opportunityBonus = 10
	highValueWeight  = 10
	crossStateWeight = 5

	MinScore = 0
	MaxScore = 100
)

// Score evaluates c and returns its risk score in [0, 100].
func Score(c *domain.Contract) int {
	return ScoreAlerts(c, Evaluate(c))
}

// ScoreAlerts computes the risk score of c from an alert list that was
// already evaluated for it.
func ScoreAlerts(c *domain.Contract, alerts []domain.FiscalAlert) int {
	risk, opportunity, _ := domain.CountAlerts(alerts)
	score := baseScore + riskWeight*risk - opportunityBonus*opportunity

	if c != nil {
		if c.Value >= highValueThreshold {
			score += highValueWeight
		}
		if c.CrossState() {
			score += crossStateWeight
		}
	}

	return clamp(score)
}

func clamp(score int) int {
	switch {
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	}
	return score
}
