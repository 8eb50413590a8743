package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storefront-qa/testpulse/packages/suite"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory...>",
	Short: "List the checks defined in suite files",
	Long: `List every check defined in .suite.yaml files.

Examples:
  testpulse list suites/checkout.suite.yaml
  testpulse list ./suites/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := suite.Discover(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no suite files found")
	}

	for _, file := range files {
		s, err := suite.LoadFile(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s (%s, %s):\n", s.Name, s.Type, file)
		for _, c := range s.Checks {
			line := fmt.Sprintf("  - [%s] %s", c.Kind, c.Name)
			if c.Skip != "" {
				line += fmt.Sprintf(" (skipped: %s)", c.Skip)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
	return nil
}
