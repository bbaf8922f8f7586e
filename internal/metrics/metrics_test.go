package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalclm/clm/internal/domain"
)

func scrape(t *testing.T, m *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector(t *testing.T) {
	m := NewCollector("clm", nil)

	m.RecordAnalysis(&domain.Analysis{
		Score: 70,
		Alerts: []domain.FiscalAlert{
			{Type: domain.AlertRisk, Code: "DIFAL"},
			{Type: domain.AlertOpportunity, Code: "REINTEGRA"},
		},
	}, 120*time.Microsecond)
	m.RecordRuleReload(3, nil)
	m.RecordRuleReload(0, errors.New("bad rule"))
	m.RecordContractOp("create")
	m.RecordDraftTransition(domain.DraftApproved)
	m.RecordEvent(domain.TopicFiscalAlert, nil)
	m.RecordHTTP(http.MethodGet, "/contracts/{id}", http.StatusOK, time.Millisecond)
	m.RecordHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		"clm_fiscal_analyses_total 1",
		`clm_fiscal_alerts_total{code="DIFAL",type="Risk"} 1`,
		`clm_fiscal_alerts_total{code="REINTEGRA",type="Opportunity"} 1`,
		`clm_rule_reloads_total{outcome="error"} 1`,
		"clm_rules_loaded 3",
		`clm_contract_operations_total{action="create"} 1`,
		`clm_draft_transitions_total{status="approved"} 1`,
		`clm_events_published_total{outcome="ok",topic="clm.fiscal.alert"} 1`,
		`clm_http_requests_total{method="GET",route="/contracts/{id}",status="200"} 1`,
		`clm_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		"go_goroutines",
	} {
		assert.Contains(t, body, want)
	}
}

func TestNilCollector(t *testing.T) {
	var m *Collector
	assert.NotPanics(t, func() {
		m.RecordAnalysis(&domain.Analysis{}, time.Second)
		m.RecordRuleReload(1, nil)
		m.RecordContractOp("delete")
		m.RecordDraftTransition(domain.DraftRejected)
		m.RecordEvent("x", errors.New("boom"))
		m.RecordHTTP("GET", "/", 200, time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeparateRegistries(t *testing.T) {
	// two collectors must not collide on registration
	a := NewCollector("", nil)
	b := NewCollector("", nil)
	a.RecordContractOp("create")

	assert.Contains(t, scrape(t, a), `clm_contract_operations_total{action="create"} 1`)
	assert.NotContains(t, scrape(t, b), `clm_contract_operations_total{action="create"}`)
}
