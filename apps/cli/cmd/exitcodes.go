package cmd

// Exit codes for the testpulse CLI
const (
	// ExitSuccess indicates all tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed
	ExitTestFailure = 1

	// ExitSuiteError indicates a suite file could not be loaded
	ExitSuiteError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitEngineError indicates the telemetry engine could not start
	ExitEngineError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
