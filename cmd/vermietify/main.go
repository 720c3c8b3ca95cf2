// Command vermietify runs the tax submission API and its maintenance jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vermietify",
	Short: "Tax submission lifecycle service",
	Long: `vermietify drives tax form submissions from draft to the tax authority's verdict.

Examples:
  vermietify serve                                  # API plus background jobs
  vermietify sweep --now 2026-05-01T00:00:00Z       # one auto-submit pass
  vermietify audit export --id <submission> --format csv
  vermietify backup verify --id <snapshot>`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("VERMIETIFY_CONFIG"), "YAML config file (environment variables take precedence)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(queuesCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
