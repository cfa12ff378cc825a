// Package cli holds the symptom-interview command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "symptom-interview",
	Short: "Adaptive symptom interview and triage service",
	Long: `symptom-interview runs a structured patient interview against a
diagnostic reasoning service: it collects evidence, asks adaptive follow-up
questions, resolves a triage level and records the assessment.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
