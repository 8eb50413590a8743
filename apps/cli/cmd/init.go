package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a starter suite file",
	Long: `Create an example suite file to get started.

Examples:
  testpulse init
  testpulse init ./suites`,
	Args: cobra.MaximumNArgs(1),
	RunE: initCommand,
}

const starterSuite = `# Example testpulse suite.
name: storefront smoke
type: integration

checks:
  - name: homepage responds
    kind: http
    request:
      method: GET
      url: /
    expect:
      status: 200

  - name: product api returns items
    kind: http
    request:
      method: GET
      url: /api/products/
    expect:
      status: 200
      body:
        - path: count
          op: ">"
          value: 0

  - name: orders table is reachable
    kind: sql
    query: SELECT id FROM shop_order LIMIT 1
`

func initCommand(cmd *cobra.Command, args []string) error {
	dir := "suites"
	if len(args) == 1 {
		dir = args[0]
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	path := dir + "/smoke.suite.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := os.WriteFile(path, []byte(starterSuite), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Run it with: testpulse run --integration\n")
	return nil
}
