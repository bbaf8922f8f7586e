package portfolio

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/rules"
)

var now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	e, err := rules.NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func fixtures() []*domain.Contract {
	return []*domain.Contract{
		{
			ID: "1", ContractNumber: "CTR-2025-001", PartyName: "Agro Cerrado Ltda",
			OperationType: domain.OperationSale, OriginState: "SP", DestinationState: "MG",
			NCM: "8427.20.10", Value: domain.FromUnits(1_250_000), Status: domain.StatusActive,
			ExpiryDate: domain.NewDate(2025, 3, 25),
		},
		{
			ID: "2", ContractNumber: "CTR-2025-002", PartyName: "Porto Seco Importadora",
			OperationType: domain.OperationImport, OriginState: domain.OutsideBR, DestinationState: "SP",
			NCM: "8428.39.90", Value: domain.FromUnits(450_000), Status: domain.StatusExpiring,
			ExpiryDate: domain.NewDate(2025, 3, 11),
		},
		{
			ID: "3", ContractNumber: "LOC-2025-003", PartyName: "Construtora Sul",
			OperationType: domain.OperationLeasing, OriginState: "PR", DestinationState: "SC",
			NCM: "8427.20.90", Value: domain.FromUnits(320_000), Status: domain.StatusActive,
			ExpiryDate: domain.NewDate(2025, 6, 30),
		},
		{
			ID: "4", ContractNumber: "CTR-2025-004", PartyName: "Amazonas Cabos",
			OperationType: domain.OperationSale, OriginState: "SP", DestinationState: "AM",
			NCM: "8544.11.00", Value: domain.FromUnits(10_000), Status: domain.StatusClosed,
			ExpiryDate: domain.NewDate(2025, 1, 31),
		},
	}
}

func ids(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Contract.ID)
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	yes, no := true, false

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"1", "2", "3", "4"}},
		{"search by number", Filter{Search: "loc-"}, []string{"3"}},
		{"search by party", Filter{Search: "  AMAZONAS "}, []string{"4"}},
		{"status", Filter{Status: domain.StatusActive}, []string{"1", "3"}},
		{"operation type", Filter{OperationType: domain.OperationSale}, []string{"1", "4"}},
		{"has risk", Filter{HasRisk: &yes}, []string{"1", "4"}},
		{"without risk", Filter{HasRisk: &no}, []string{"2", "3"}},
		{"has opportunity", Filter{HasOpportunity: &yes}, []string{"1", "2", "3", "4"}},
		{"combined", Filter{OperationType: domain.OperationSale, HasRisk: &yes, Search: "cabos"}, []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Apply(ctx, engine, fixtures(), tt.filter)
			assert.Equal(t, tt.want, ids(items))
			for _, it := range items {
				assert.NotNil(t, it.Analysis)
				assert.Equal(t, it.Contract.ID, it.Analysis.ContractID)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	yes := true
	c := fixtures()[0]

	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{HasRisk: &yes}.IsZero())
	assert.False(t, Filter{}.Match(nil, nil))

	// Alert filters need an analysis
	assert.False(t, Filter{HasRisk: &yes}.Match(c, nil))
	assert.True(t, Filter{Search: "agro"}.Match(c, nil))
}

func TestContracts(t *testing.T) {
	items := Apply(context.Background(), newEngine(t), fixtures(), Filter{Status: domain.StatusActive})
	got := Contracts(items)
	require.Len(t, got, 2)
	assert.Equal(t, "CTR-2025-001", got[0].ContractNumber)
}

func TestDaysUntilExpiry(t *testing.T) {
	tests := []struct {
		name   string
		expiry domain.Date
		want   int
		ok     bool
	}{
		{"no expiry date", domain.Date{}, 0, false},
		{"tomorrow rounds up", domain.NewDate(2025, 3, 11), 1, true},
		{"two weeks", domain.NewDate(2025, 3, 24), 14, true},
		{"expired yesterday", domain.NewDate(2025, 3, 9), -1, true},
		{"expired last week", domain.NewDate(2025, 3, 2), -8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DaysUntilExpiry(tt.expiry, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(context.Background(), newEngine(t), fixtures(), now)

	assert.Equal(t, 4, s.TotalContracts)
	assert.Equal(t, domain.FromUnits(2_030_000), s.TotalValue)
	assert.Equal(t, map[domain.Status]int{
		domain.StatusActive:   2,
		domain.StatusExpiring: 1,
		domain.StatusClosed:   1,
	}, s.ByStatus)

	require.Len(t, s.ByOperation, 3)
	assert.Equal(t, domain.OperationSale, s.ByOperation[0].OperationType)
	assert.Equal(t, "Venda", s.ByOperation[0].Label)
	assert.Equal(t, 2, s.ByOperation[0].Count)
	assert.Equal(t, domain.FromUnits(1_260_000), s.ByOperation[0].Value)
	assert.Equal(t, domain.OperationLeasing, s.ByOperation[1].OperationType)
	assert.Equal(t, domain.OperationImport, s.ByOperation[2].OperationType)

	var states []domain.State
	for _, st := range s.TopDestinations {
		states = append(states, st.State)
	}
	assert.Equal(t, []domain.State{"MG", "SP", "SC", "AM"}, states)

	// DIFAL x2 + ICMS_ST; EX_TARIFARIO x3, DRAWBACK, LEASING_ICMS, ZFM
	assert.Equal(t, 3, s.RiskAlerts)
	assert.Equal(t, 6, s.OpportunityAlerts)
	assert.Equal(t, 3, s.AlertsByCode["EX_TARIFARIO"])
	assert.Equal(t, 4, s.AlertsByCode["REINTEGRA"])
	assert.InDelta(t, (70+35+35+75)/4.0, s.AverageScore, 0.001)

	require.Len(t, s.Expiring, 2)
	assert.Equal(t, "2", s.Expiring[0].ID)
	assert.Equal(t, 1, s.Expiring[0].DaysLeft)
	assert.Equal(t, "1", s.Expiring[1].ID)
	assert.Equal(t, 15, s.Expiring[1].DaysLeft)
}

func TestSummarizeTopDestinationsLimit(t *testing.T) {
	var contracts []*domain.Contract
	for i, uf := range []domain.State{"AC", "AL", "AP", "BA", "CE", "DF", "ES"} {
		contracts = append(contracts, &domain.Contract{
			DestinationState: uf,
			Value:            domain.FromUnits(int64(100 * (i + 1))),
		})
	}
	s := Summarize(context.Background(), newEngine(t), contracts, now)
	require.Len(t, s.TopDestinations, TopStatesLimit)
	assert.Equal(t, domain.State("ES"), s.TopDestinations[0].State)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(context.Background(), newEngine(t), nil, now)
	assert.Zero(t, s.TotalContracts)
	assert.Zero(t, s.AverageScore)
	assert.NotNil(t, s.Expiring)
	assert.Empty(t, s.TopDestinations)
}
