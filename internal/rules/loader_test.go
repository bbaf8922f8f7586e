package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalclm/clm/internal/domain"
)

const testPack = `
version: "2025.1"
rules:
  - id: rj-sale
    name: Sale into Rio de Janeiro
    expression: operation_type == "sale" && destination_state == "RJ"
    alertType: Risk
    code: RJ_FECP
    message: Verificar adicional do FECP.
    impact: Alíquota adicional de até 2% destinada ao fundo de pobreza.
    enabled: true
  - id: big-leasing
    name: Large leasing
    version: "1.1"
    dialect: jsonlogic
    expression: '{">=":[{"var":"value"},500000]}'
    alertType: Info
    code: BIG_LEASING
    message: Locação de grande porte.
    enabled: false
`

func TestParsePack(t *testing.T) {
	pack, err := ParsePack(strings.NewReader(testPack))
	require.NoError(t, err)
	require.Len(t, pack.Rules, 2)

	first := pack.Rules[0]
	assert.Equal(t, "rj-sale", first.ID)
	assert.Equal(t, domain.DialectCEL, first.Dialect)
	assert.Equal(t, "2025.1", first.Version)
	assert.Equal(t, domain.AllTenants, first.TenantID)
	assert.True(t, first.Enabled)

	second := pack.Rules[1]
	assert.Equal(t, domain.DialectJSONLogic, second.Dialect)
	assert.Equal(t, "1.1", second.Version)
	assert.False(t, second.Enabled)

	engine := newTestEngine(t)
	require.NoError(t, engine.LoadRules(pack.Rules))
	assert.Equal(t, 1, engine.RulesCount())
}

func TestParsePackErrors(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		doc := "rules:\n  - id: a\n  - id: a\n"
		_, err := ParsePack(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("unknown field", func(t *testing.T) {
		doc := "rules:\n  - id: a\n    weight: 2\n"
		_, err := ParsePack(strings.NewReader(doc))
		assert.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		pack, err := ParsePack(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, pack.Rules)
	})
}

func TestLoadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPack), 0o600))

	pack, err := LoadPack(path)
	require.NoError(t, err)
	assert.Len(t, pack.Rules, 2)

	_, err = LoadPack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	pack := []*domain.RuleConfig{
		{ID: "b", Name: "from pack"},
		{ID: "a", Name: "pack only"},
	}
	stored := []*domain.RuleConfig{
		{ID: "c", Name: "stored only"},
		{ID: "b", Name: "from store"},
		nil,
	}

	merged := Merge(pack, stored)
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, "from store", merged[1].Name)
	assert.Equal(t, "c", merged[2].ID)

	assert.Empty(t, Merge(nil, nil))
}
