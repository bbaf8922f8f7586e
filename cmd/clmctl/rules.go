package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/rules"
)

var rulesPack string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate fiscal rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the builtin rules and the extension rules of a pack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var pack []*domain.RuleConfig
		if rulesPack != "" {
			p, err := rules.LoadPack(rulesPack)
			if err != nil {
				return err
			}
			pack = p.Rules
		}
		printRules(cmd.OutOrStdout(), rules.BuiltinRules(), pack)
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <pack.yaml>...",
	Short: "Compile every rule of one or more rule packs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		engine, err := rules.NewEngine(slog.New(slog.DiscardHandler))
		if err != nil {
			return err
		}

		failed := 0
		for _, path := range args {
			n, errs := validatePack(engine, path)
			if len(errs) == 0 {
				fmt.Fprintf(out, "✓ %s: %d rules\n", path, n)
				continue
			}
			failed += len(errs)
			fmt.Fprintf(out, "✗ %s\n", path)
			for _, err := range errs {
				fmt.Fprintf(out, "    %v\n", err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d invalid rules", failed)
		}
		return nil
	},
}

func init() {
	rulesListCmd.Flags().StringVar(&rulesPack, "pack", "", "YAML rule pack to list after the builtin rules")
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
}

// validatePack compiles each rule of the pack without loading it.
func validatePack(engine *rules.Engine, path string) (int, []error) {
	p, err := rules.LoadPack(path)
	if err != nil {
		return 0, []error{err}
	}
	var errs []error
	for _, rule := range p.Rules {
		if err := engine.ValidateRule(rule); err != nil {
			errs = append(errs, err)
		}
	}
	if len(p.Rules) == 0 {
		errs = append(errs, errors.New("pack has no rules"))
	}
	return len(p.Rules), errs
}

func printRules(w io.Writer, builtin []rules.Rule, pack []*domain.RuleConfig) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tCODE\tTYPE\tWHEN")
	for _, r := range builtin {
		fmt.Fprintf(tw, "builtin\t%s\t%s\t%s\n", r.Code, r.Type, r.Description)
	}
	for _, r := range pack {
		source := "pack"
		if !r.Enabled {
			source = "pack (disabled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s [%s]\n", source, r.Code, r.AlertType, r.Expression, r.Dialect)
	}
	tw.Flush()
}
