package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiscalclm/clm/internal/domain"
)

func TestScoreBounds(t *testing.T) {
	var states = []domain.State{"SP", "AM", "RR", domain.OutsideBR}
	var ncms = []string{"", "8427.20.10", "8544.11.00", "8536.10.00", "0101.21.00"}
	var values = []int64{0, 999_999, 1_000_000, 50_000_000}

	ops := append([]domain.OperationType{domain.OperationUnknown}, domain.OperationTypes()...)
	for _, op := range ops {
		for _, origin := range states {
			for _, dest := range states {
				for _, ncm := range ncms {
					for _, v := range values {
						c := contract(op, origin, dest, ncm, v)
						s := Score(c)
						if s < MinScore || s > MaxScore {
							t.Fatalf("score %d out of bounds for %+v", s, c)
						}
					}
				}
			}
		}
	}
}

func TestScoreClamp(t *testing.T) {
	many := func(typ domain.AlertType, n int) []domain.FiscalAlert {
		out := make([]domain.FiscalAlert, n)
		for i := range out {
			out[i] = domain.FiscalAlert{Type: typ}
		}
		return out
	}

	assert.Equal(t, MaxScore, ScoreAlerts(&domain.Contract{}, many(domain.AlertRisk, 10)))
	assert.Equal(t, MinScore, ScoreAlerts(&domain.Contract{}, many(domain.AlertOpportunity, 10)))
	assert.Equal(t, 50, ScoreAlerts(&domain.Contract{}, many(domain.AlertInfo, 10)))
}

func TestScoreAdjustments(t *testing.T) {
	base := contract(domain.OperationUnknown, "SP", "SP", "", 10)
	assert.Equal(t, 50, Score(base))

	cross := *base
	cross.DestinationState = "RJ"
	assert.Equal(t, 55, Score(&cross))

	// OUTSIDE_BR counts as cross-state movement
	abroad := *base
	abroad.OriginState = domain.OutsideBR
	assert.Equal(t, 55, Score(&abroad))

	high := *base
	high.Value = domain.FromUnits(1_000_000)
	assert.Equal(t, 60, Score(&high))
}

func TestScoreMonotonicInRisk(t *testing.T) {
	without := contract(domain.OperationComodato, "SP", "SP", "8471.30.00", 10)
	with := contract(domain.OperationComodato, "SP", "SP", "8544.30.00", 10)

	assert.NotContains(t, codes(Evaluate(without)), "ICMS_ST")
	assert.Contains(t, codes(Evaluate(with)), "ICMS_ST")
	assert.GreaterOrEqual(t, Score(with), Score(without))
}

func TestScoreAlertsMatchesScore(t *testing.T) {
	c := contract(domain.OperationSale, "SP", "MG", "8427.20.10", 1_250_000)
	assert.Equal(t, Score(c), ScoreAlerts(c, Evaluate(c)))
}
