// Command clmctl is the operator CLI of the contract lifecycle service.
//
// Usage:
//
//	clmctl analyze --operation sale --origin SP --destination MG --ncm 8427.20.10 --value 1250000
//	clmctl load contratos.csv --url http://localhost:8080 --tenant acme
//	clmctl rules list --pack rules.yaml
//	clmctl rules validate rules.yaml
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL  string
	tenantID string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "clmctl",
	Short:         "Operate the contract lifecycle service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("CLM_URL", "http://localhost:8080"), "CLM base URL")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", envOr("CLM_TENANT", ""), "tenant ID sent as X-Tenant-ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(rulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
