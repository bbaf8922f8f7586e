package rules

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fiscalclm/clm/internal/domain"
)

// ParsePack decodes a YAML rule pack. Rules without a version inherit the
// pack version; rules without a dialect are CEL.
func ParsePack(r io.Reader) (*domain.RulePack, error) {
	var pack domain.RulePack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		if err == io.EOF {
			return &pack, nil
		}
		return nil, fmt.Errorf("failed to decode rule pack: %w", err)
	}

	seen := make(map[string]bool, len(pack.Rules))
	for i, rule := range pack.Rules {
		if rule == nil {
			return nil, fmt.Errorf("%w: rule pack entry %d is empty", ErrInvalidRule, i)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q in pack", ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true

		rule.TenantID = domain.AllTenants
		if rule.Version == "" {
			rule.Version = pack.Version
		}
		if rule.Dialect == "" {
			rule.Dialect = domain.DialectCEL
		}
	}
	return &pack, nil
}

// LoadPack reads a YAML rule pack from disk.
func LoadPack(path string) (*domain.RulePack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule pack: %w", err)
	}
	defer f.Close()

	return ParsePack(f)
}

// Merge combines pack rules with stored rules. A stored rule replaces the
// pack rule with the same ID; the result is ordered by ID.
func Merge(pack, stored []*domain.RuleConfig) []*domain.RuleConfig {
	byID := make(map[string]*domain.RuleConfig, len(pack)+len(stored))
	for _, r := range pack {
		if r != nil {
			byID[r.ID] = r
		}
	}
	for _, r := range stored {
		if r != nil {
			byID[r.ID] = r
		}
	}

	merged := make([]*domain.RuleConfig, 0, len(byID))
	for _, r := range byID {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}
