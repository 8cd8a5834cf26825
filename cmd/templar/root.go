package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "templar",
	Short: "Template verification pipeline",
	Long: `Templar verifies that project templates actually work: it generates
each template into a throwaway workspace, checks the output for
unresolved placeholders and suspicious content, runs the declared
build steps, and confirms the expected artifacts exist.

Templates are directories under the registry root (templates/ by
default), each carrying a template.yaml manifest. Verification runs
are hermetic: workspaces are created fresh, cleaned up by policy, and
never shared between runs.

Core commands:
  verify          Verify a single template end to end
  verify-all      Verify every registered template in parallel
  list-templates  Show the registered templates

Configuration is read from ~/.config/templar/config.yaml, overridden
by a project-local .templar.yaml and TEMPLAR_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(verifyAllCmd)
	rootCmd.AddCommand(listTemplatesCmd)
	rootCmd.AddCommand(versionCmd)
}
