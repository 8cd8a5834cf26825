package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/templar-ci/templar/internal/config"
	"github.com/templar-ci/templar/internal/registry"
	"github.com/templar-ci/templar/pkg/models"
)

var listVerbose bool

var listTemplatesCmd = &cobra.Command{
	Use:   "list-templates",
	Short: "Show the registered templates",
	Long: `List every template under the registry root with its description.

With --verbose, also show each template's parameters, build steps,
and expected artifacts.`,
	Args: cobra.NoArgs,
	RunE: runListTemplates,
}

func init() {
	listTemplatesCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show parameters, build steps, and artifacts")
}

func runListTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	reg := registry.New(cfg.Templates.Root)
	refs, err := reg.List()
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Printf("No templates under %s.\n", reg.Root())
		return nil
	}

	fmt.Printf("Found %d template(s) under %s:\n\n", len(refs), reg.Root())
	for _, ref := range refs {
		printTemplate(ref, listVerbose)
	}
	return nil
}

func printTemplate(ref models.TemplateRef, verbose bool) {
	name := color.New(color.FgCyan, color.Bold).Sprint(ref.Name)
	if ref.Description != "" {
		fmt.Printf("  %s  %s\n", name, ref.Description)
	} else {
		fmt.Printf("  %s\n", name)
	}

	if !verbose {
		return
	}

	for _, p := range ref.Parameters {
		line := fmt.Sprintf("    param %s", p.Name)
		if p.Default != "" {
			line += fmt.Sprintf(" (default %q)", p.Default)
		}
		if p.Description != "" {
			line += "  " + p.Description
		}
		fmt.Println(line)
	}
	for _, step := range ref.BuildSteps {
		fmt.Printf("    build %s: %v\n", step.Name, step.Command)
	}
	for _, pattern := range ref.ExpectedArtifacts {
		fmt.Printf("    artifact %s\n", pattern)
	}
	for _, script := range ref.Scripts {
		fmt.Printf("    script %s (%s)\n", script.Name, script.Path)
	}
	fmt.Println()
}
