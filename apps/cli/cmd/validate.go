package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-qa/testpulse/packages/schema"
	"github.com/storefront-qa/testpulse/packages/suite"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory...>",
	Short: "Validate suite files and stats reports",
	Long: `Validate suite definitions for structural errors without running them.
Stats JSON documents (*_stats_*.json) are checked against the report schema
instead.

Examples:
  testpulse validate suites/checkout.suite.yaml
  testpulse validate ./suites/
  testpulse validate test_logs/unit_stats_20260823_141502.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	var suitePaths, statsPaths []string
	for _, arg := range args {
		if isStatsFile(arg) {
			statsPaths = append(statsPaths, arg)
		} else {
			suitePaths = append(suitePaths, arg)
		}
	}

	var files []string
	if len(suitePaths) > 0 {
		found, err := suite.Discover(suitePaths)
		if err != nil {
			return err
		}
		files = found
	}

	if len(files) == 0 && len(statsPaths) == 0 {
		return fmt.Errorf("no suite or stats files found")
	}

	hasErrors := false
	for _, file := range files {
		if _, err := suite.LoadFile(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}
	for _, file := range statsPaths {
		if err := schema.ValidateFile(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func isStatsFile(path string) bool {
	return strings.HasSuffix(path, ".json") && strings.Contains(path, "_stats_")
}
