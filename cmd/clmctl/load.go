package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/export"
)

var loadOpts struct {
	workers int
	dryRun  bool
	verbose bool
}

var loadCmd = &cobra.Command{
	Use:   "load <file.csv>",
	Short: "Create contracts from a CSV file",
	Long: `Reads a contract CSV in the export layout (semicolon separated, optional
UTF-8 BOM, columns matched by header name) and creates each row through
POST /contracts. Rows that fail to parse or are rejected by the server
are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.IntVarP(&loadOpts.workers, "workers", "w", 8, "concurrent requests")
	f.BoolVar(&loadOpts.dryRun, "dry-run", false, "parse the file without sending anything")
	f.BoolVarP(&loadOpts.verbose, "verbose", "v", false, "print each created contract")
}

// loadStats tracks a load run.
type loadStats struct {
	created atomic.Int64
	failed  atomic.Int64
}

func runLoad(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	contracts, parseErr := export.ReadCSV(r)
	if parseErr != nil {
		if len(contracts) == 0 {
			return parseErr
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped rows:\n%v\n", parseErr)
	}
	var total domain.Money
	for _, c := range contracts {
		total += c.Value
	}
	fmt.Fprintf(out, "Parsed %d contracts, total %s\n", len(contracts), total.BRL())
	if loadOpts.dryRun || len(contracts) == 0 {
		return nil
	}

	if tenantID == "" {
		return errors.New("--tenant is required")
	}
	if loadOpts.workers < 1 {
		return errors.New("--workers must be at least 1")
	}

	c := newClient()
	ctx := cmd.Context()
	if err := c.checkHealth(ctx); err != nil {
		return fmt.Errorf("CLM not reachable at %s: %w", c.baseURL, err)
	}

	start := time.Now()
	stats := &loadStats{}
	if err := sendContracts(ctx, c, contracts, loadOpts.workers, stats, func(i int, created *domain.Contract, err error) {
		switch {
		case err != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", contracts[i].ContractNumber, err)
		case loadOpts.verbose:
			fmt.Fprintf(out, "%s -> %s\n", created.ContractNumber, created.ID)
		}
	}); err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Fprintf(out, "Created %d, failed %d in %v\n",
		stats.created.Load(), stats.failed.Load(), elapsed.Round(time.Millisecond))

	if n := stats.failed.Load(); n > 0 {
		return fmt.Errorf("%d contracts were not created", n)
	}
	return nil
}

// sendContracts posts contracts with at most workers requests in flight.
// Rejected contracts are counted and reported; only a cancelled context
// stops the run.
func sendContracts(ctx context.Context, c *client, contracts []*domain.Contract, workers int, stats *loadStats, report func(int, *domain.Contract, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, contract := range contracts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var created domain.Contract
			err := c.do(gctx, "POST", "/contracts", contract, &created)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.failed.Add(1)
				report(i, nil, err)
				return nil
			}
			stats.created.Add(1)
			report(i, &created, nil)
			return nil
		})
	}
	return g.Wait()
}
