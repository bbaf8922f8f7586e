package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/rules"
)

type analyzeOptions struct {
	file        string
	operation   string
	origin      string
	destination string
	ncm         string
	value       string
	pack        string
	remote      bool
	asJSON      bool
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show the fiscal alerts and risk score of a contract",
	Long: `Evaluates a contract against the builtin fiscal rules and, with --pack,
the extension rules of a rule pack. The contract comes from --file (JSON) or
from the attribute flags. With --remote the server's POST /analyze is used.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeOpts.file, "file", "f", "", "contract JSON file (- for stdin)")
	f.StringVar(&analyzeOpts.operation, "operation", "", "operation type: sale, leasing, comodato, import, export")
	f.StringVar(&analyzeOpts.origin, "origin", "", "origin state")
	f.StringVar(&analyzeOpts.destination, "destination", "", "destination state or OUTSIDE_BR")
	f.StringVar(&analyzeOpts.ncm, "ncm", "", "NCM code")
	f.StringVar(&analyzeOpts.value, "value", "", "contract value, e.g. 1250000 or \"R$ 1.250.000,00\"")
	f.StringVar(&analyzeOpts.pack, "pack", "", "YAML rule pack with extension rules")
	f.BoolVar(&analyzeOpts.remote, "remote", false, "analyze on the server instead of locally")
	f.BoolVar(&analyzeOpts.asJSON, "json", false, "print the analysis as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	c, err := analyzeInput(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var analysis *domain.Analysis
	if analyzeOpts.remote {
		if tenantID == "" {
			return errors.New("--tenant is required with --remote")
		}
		analysis = &domain.Analysis{}
		if err := newClient().do(ctx, "POST", "/analyze", c, analysis); err != nil {
			return err
		}
	} else {
		engine, err := localEngine(analyzeOpts.pack)
		if err != nil {
			return err
		}
		analysis = engine.Analyze(ctx, c)
	}

	out := cmd.OutOrStdout()
	if analyzeOpts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	printAnalysis(out, analysis)
	return nil
}

func analyzeInput(stdin io.Reader) (*domain.Contract, error) {
	if analyzeOpts.file != "" {
		r := stdin
		if analyzeOpts.file != "-" {
			f, err := os.Open(analyzeOpts.file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var c domain.Contract
		if err := json.NewDecoder(r).Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to decode contract: %w", err)
		}
		return &c, nil
	}

	c := &domain.Contract{
		NCM:              analyzeOpts.ncm,
		OriginState:      domain.NormalizeState(analyzeOpts.origin),
		DestinationState: domain.NormalizeState(analyzeOpts.destination),
	}
	var err error
	if c.OperationType, err = domain.ParseOperationType(analyzeOpts.operation); err != nil {
		return nil, err
	}
	if analyzeOpts.value != "" {
		if c.Value, err = domain.ParseMoney(analyzeOpts.value); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// localEngine builds an engine with the builtin rules and, when given,
// the extension rules of a pack.
func localEngine(pack string) (*rules.Engine, error) {
	engine, err := rules.NewEngine(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err != nil {
		return nil, err
	}
	if pack == "" {
		return engine, nil
	}
	p, err := rules.LoadPack(pack)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(p.Rules); err != nil {
		return nil, err
	}
	return engine, nil
}

func printAnalysis(w io.Writer, a *domain.Analysis) {
	fmt.Fprintf(w, "Score: %d/100  (risk %d, opportunity %d, info %d)\n\n",
		a.Score, a.RiskCount, a.OpportunityCount, a.InfoCount)
	if len(a.Alerts) == 0 {
		fmt.Fprintln(w, "No fiscal alerts.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCODE\tMESSAGE")
	for _, alert := range a.Alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", alert.Type, alert.Code, alert.Message)
	}
	tw.Flush()
}
