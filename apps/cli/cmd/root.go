package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"

	// Logger carries engine-internal diagnostics. Test results never go
	// through it; they flow into the session log files.
	Logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "testpulse",
	Short: "Test telemetry and reporting for the storefront QA lab",
	Long: `testpulse runs the storefront check suites and records every test
event into per-run log files and a machine-readable stats report.

Each run gets its own timestamped file set under test_logs/ (override
with TESTPULSE_LOG_DIR): a detailed log, a summary log, an errors log,
a performance log and a stats JSON document.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stderr)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warning"
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL %q, defaulting to 'warning'\n", logLevel)
		level = logrus.WarnLevel
	}
	Logger.SetLevel(level)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
