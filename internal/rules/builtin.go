package rules

import (
	"github.com/fiscalclm/clm/internal/domain"
)

// Rule is one entry of the builtin fiscal rule table: a static alert
// paired with the condition that emits it.
type Rule struct {
	Code    string
	Type    domain.AlertType
	Message string
	Impact  string

	// Description states the trigger in plain words, for audit listings.
	Description string

	when func(ncmView) bool
}

// Matches reports whether the rule fires for c. A nil contract never matches.
func (r Rule) Matches(c *domain.Contract) bool {
	if c == nil {
		return false
	}
	return r.when(view(c))
}

// Alert returns the alert the rule emits.
func (r Rule) Alert() domain.FiscalAlert {
	return domain.FiscalAlert{
		Type:    r.Type,
		Code:    r.Code,
		Message: r.Message,
		Impact:  r.Impact,
	}
}

// ncmView is the read-only projection the rule conditions see: the
// contract plus its digit-only NCM, computed once per evaluation.
type ncmView struct {
	*domain.Contract
	digits string
}

func view(c *domain.Contract) ncmView {
	return ncmView{Contract: c, digits: NormalizeNCM(c.NCM)}
}

// highValueThreshold is inclusive.
var highValueThreshold = domain.FromUnits(1_000_000)

// suframaStates are the destinations under SUFRAMA customs control.
var suframaStates = map[domain.State]bool{
	"AM": true, "RR": true, "AP": true, "AC": true, "RO": true,
}

// Adding an operation type changes OperationTypeCount and breaks this
// line; review the table below before updating it.
func _() {
	var x [1]struct{}
	_ = x[domain.OperationTypeCount-6]
}

// builtinRules is evaluated in declaration order; that order is the
// order of the returned alerts.
var builtinRules = []Rule{
	{
		Code:        "DRAWBACK",
		Type:        domain.AlertOpportunity,
		Message:     "Elegibilidade para Drawback Suspensão/Isenção detectada.",
		Impact:      "Redução de até 100% no II, IPI, PIS e COFINS-Importação.",
		Description: "operation is import",
		when: func(c ncmView) bool {
			return c.OperationType == domain.OperationImport
		},
	},
	{
		Code:        "DIFAL",
		Type:        domain.AlertRisk,
		Message:     "Análise de DIFAL obrigatória (EC 87/2015).",
		Impact:      "Risco de retenção de carga por recolhimento incorreto da diferença de alíquota.",
		Description: "sale between different states, destination inside the country",
		when: func(c ncmView) bool {
			return c.OperationType == domain.OperationSale &&
				c.OriginState != c.DestinationState &&
				c.DestinationState != domain.OutsideBR
		},
	},
	{
		Code:        "LEASING_ICMS",
		Type:        domain.AlertOpportunity,
		Message:     "Não incidência de ICMS sobre locação de bens móveis.",
		Impact:      "Economia direta de ICMS (Súmula Vinculante 31 STF).",
		Description: "operation is leasing",
		when: func(c ncmView) bool {
			return c.OperationType == domain.OperationLeasing
		},
	},
	{
		Code:        "EX_TARIFARIO",
		Type:        domain.AlertOpportunity,
		Message:     "Ex-Tarifário para Bens de Capital (BK).",
		Impact:      "Verificar se o NCM possui redução temporária de I.I. para 0%.",
		Description: "NCM starts with 8427 or 8428",
		when: func(c ncmView) bool {
			return hasNCMPrefix(c.digits, "8427", "8428")
		},
	},
	{
		Code:        "COMODATO_ISS",
		Type:        domain.AlertInfo,
		Message:     "Comodato não sofre incidência de ICMS.",
		Impact:      "Atenção: se houver prestação de serviço associada, pode haver incidência de ISS.",
		Description: "operation is comodato",
		when: func(c ncmView) bool {
			return c.OperationType == domain.OperationComodato
		},
	},
	{
		Code:        "EXPORT_IMMUNITY",
		Type:        domain.AlertOpportunity,
		Message:     "Imunidade tributária na exportação.",
		Impact:      "Exportações são imunes a ICMS, IPI, PIS e COFINS (CF art. 155, §2º, X, a).",
		Description: "operation is export or destination is outside the country",
		when: func(c ncmView) bool {
			return c.OperationType == domain.OperationExport || c.DestinationState == domain.OutsideBR
		},
	},
	{
		Code:        "HIGH_VALUE",
		Type:        domain.AlertInfo,
		Message:     "Contrato de alto valor.",
		Impact:      "Contratos acima de R$ 1.000.000,00 exigem revisão de compliance reforçada.",
		Description: "value is at least 1,000,000.00",
		when: func(c ncmView) bool {
			return c.Value >= highValueThreshold
		},
	},
	{
		Code:        "ZFM",
		Type:        domain.AlertOpportunity,
		Message:     "Destino na Zona Franca de Manaus.",
		Impact:      "Possível isenção de IPI e crédito presumido de ICMS para remessas à ZFM.",
		Description: "sale with destination AM",
		when: func(c ncmView) bool {
			return c.DestinationState == "AM" && c.OperationType == domain.OperationSale
		},
	},
	{
		Code:        "SUFRAMA",
		Type:        domain.AlertInfo,
		Message:     "Verificar inscrição SUFRAMA do destinatário.",
		Impact:      "Benefícios da Amazônia Ocidental dependem de inscrição ativa e internamento da mercadoria.",
		Description: "sale with destination AM, RR, AP, AC or RO",
		when: func(c ncmView) bool {
			return suframaStates[c.DestinationState] && c.OperationType == domain.OperationSale
		},
	},
	{
		Code:        "REINTEGRA",
		Type:        domain.AlertInfo,
		Message:     "NCM elegível ao REINTEGRA.",
		Impact:      "Máquinas e equipamentos dos capítulos 84 e 85 podem gerar crédito na exportação.",
		Description: "NCM starts with 84 or 85",
		when: func(c ncmView) bool {
			return hasNCMPrefix(c.digits, "84", "85")
		},
	},
	{
		Code:        "ICMS_ST",
		Type:        domain.AlertRisk,
		Message:     "Mercadoria sujeita a ICMS-ST.",
		Impact:      "Verificar protocolo interestadual e MVA aplicável para evitar autuação.",
		Description: "NCM starts with 8544, 8536, 8537 or 8538",
		when: func(c ncmView) bool {
			return hasNCMPrefix(c.digits, "8544", "8536", "8537", "8538")
		},
	},
}

// builtinCodes is the set of codes reserved by the builtin table.
var builtinCodes = func() map[string]bool {
	m := make(map[string]bool, len(builtinRules))
	for _, r := range builtinRules {
		m[r.Code] = true
	}
	return m
}()

// BuiltinRules returns a copy of the builtin rule table in evaluation order.
func BuiltinRules() []Rule {
	out := make([]Rule, len(builtinRules))
	copy(out, builtinRules)
	return out
}

// IsBuiltinCode reports whether code belongs to a builtin rule.
func IsBuiltinCode(code string) bool {
	return builtinCodes[code]
}

// Evaluate runs every builtin rule against c and returns the alerts of
// the rules that matched, in declaration order. It never fails; a nil
// contract yields an empty list.
func Evaluate(c *domain.Contract) []domain.FiscalAlert {
	alerts := make([]domain.FiscalAlert, 0, 4)
	if c == nil {
		return alerts
	}
	v := view(c)
	for _, r := range builtinRules {
		if r.when(v) {
			alerts = append(alerts, r.Alert())
		}
	}
	return alerts
}
