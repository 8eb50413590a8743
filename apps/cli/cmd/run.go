package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/storefront-qa/testpulse/packages/config"
	"github.com/storefront-qa/testpulse/packages/report"
	"github.com/storefront-qa/testpulse/packages/suite"
	"github.com/storefront-qa/testpulse/packages/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run [file|directory...]",
	Short: "Run check suites and record telemetry",
	Long: `Run check suites from .suite.yaml files. Each selected category gets
its own telemetry session with a fresh run ID and file set.

With no arguments the suite directory from the config file is used.

Examples:
  testpulse run --all
  testpulse run --unit --integration
  testpulse run suites/checkout.suite.yaml --browser
  testpulse run ./suites/ --performance --log-dir /tmp/qa-logs
  testpulse run --all --parallel --concurrency 10
  testpulse run --unit --watch`,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	unitFlag        bool
	integrationFlag bool
	performanceFlag bool
	securityFlag    bool
	browserFlag     bool
	alternateFlag   bool
	coverageFlag    bool
	allFlag         bool

	logDirFlag      string
	baseURLFlag     string
	databaseFlag    string
	configFlag      string
	noColorFlag     bool
	parallelFlag    bool
	concurrencyFlag int
	watchFlag       bool
)

func init() {
	// Category selection flags
	runCmd.Flags().BoolVar(&unitFlag, "unit", false, "Run unit suites")
	runCmd.Flags().BoolVar(&integrationFlag, "integration", false, "Run integration suites")
	runCmd.Flags().BoolVar(&performanceFlag, "performance", false, "Run performance suites")
	runCmd.Flags().BoolVar(&securityFlag, "security", false, "Run security suites")
	runCmd.Flags().BoolVar(&browserFlag, "browser", false, "Run browser suites")
	runCmd.Flags().BoolVar(&alternateFlag, "alternate", false, "Run alternate-framework suites")
	runCmd.Flags().BoolVar(&coverageFlag, "coverage", false, "Run coverage suites")
	runCmd.Flags().BoolVar(&allFlag, "all", false, "Run every category found")

	// Engine flags
	runCmd.Flags().StringVar(&logDirFlag, "log-dir", getEnvString("TESTPULSE_LOG_DIR", ""), "Directory for run logs (env: TESTPULSE_LOG_DIR)")
	runCmd.Flags().StringVar(&baseURLFlag, "base-url", getEnvString("TESTPULSE_BASE_URL", ""), "Base URL for relative check targets (env: TESTPULSE_BASE_URL)")
	runCmd.Flags().StringVar(&databaseFlag, "database", getEnvString("TESTPULSE_DATABASE", ""), "Connection string for sql checks (env: TESTPULSE_DATABASE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("TESTPULSE_CONFIG", ""), "Path to config file (env: TESTPULSE_CONFIG)")

	// Output flags
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TESTPULSE_NO_COLOR", false), "Disable colored output (env: TESTPULSE_NO_COLOR)")

	// Execution flags
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("TESTPULSE_PARALLEL", false), "Run checks within a suite in parallel (env: TESTPULSE_PARALLEL)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("TESTPULSE_CONCURRENCY", 5), "Concurrent checks when running in parallel (env: TESTPULSE_CONCURRENCY)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch suite files for changes and re-run")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func selectedCategories() map[string]bool {
	selected := map[string]bool{}
	for flag, on := range map[string]bool{
		"unit":        unitFlag,
		"integration": integrationFlag,
		"performance": performanceFlag,
		"security":    securityFlag,
		"browser":     browserFlag,
		"alternate":   alternateFlag,
		"coverage":    coverageFlag,
	} {
		if on || allFlag {
			selected[flag] = true
		}
	}
	return selected
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig := config.DefaultConfig()
	if configFlag != "" {
		loaded, err := config.LoadConfig(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		fileConfig = fileConfig.Merge(loaded)
	} else if found, err := config.FindAndLoadConfig("."); err == nil && found != nil {
		fileConfig = fileConfig.Merge(found)
	}

	logDir := fileConfig.LogDir
	if logDirFlag != "" {
		logDir = logDirFlag
	}
	baseURL := fileConfig.BaseURL
	if baseURLFlag != "" {
		baseURL = baseURLFlag
	}
	database := fileConfig.Database
	if databaseFlag != "" {
		database = databaseFlag
	}
	parallel := fileConfig.GetParallel() || parallelFlag
	noColor := fileConfig.GetNoColor() || noColorFlag

	searchPaths := args
	if len(searchPaths) == 0 {
		searchPaths = []string{fileConfig.SuiteDir}
	}

	selected := selectedCategories()
	if len(selected) == 0 {
		return fmt.Errorf("no categories selected (use --unit, --integration, ... or --all)")
	}

	console := report.New(report.WithNoColor(noColor))
	console.Header(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := telemetry.NewManager(
		telemetry.WithLogDir(logDir),
		telemetry.WithLogger(Logger),
	)

	runOnce := func() (int, error) {
		suites, err := loadSuites(searchPaths, selected)
		if err != nil {
			console.Error(err)
			return 0, err
		}
		if len(suites) == 0 {
			err := fmt.Errorf("no suite files matched the selected categories")
			console.Error(err)
			return 0, err
		}
		return runCategories(ctx, manager, console, suites, baseURL, database, parallel)
	}

	totalFailed, err := runOnce()
	if err != nil {
		return err
	}

	if !watchFlag {
		if totalFailed > 0 {
			os.Exit(ExitTestFailure)
		}
		return nil
	}

	return watchSuites(ctx, cmd, searchPaths, runOnce)
}

// loadSuites discovers and loads every suite under the search paths whose
// type is among the selected categories, grouped by type.
func loadSuites(paths []string, selected map[string]bool) (map[string][]*suite.Suite, error) {
	files, err := suite.Discover(paths)
	if err != nil {
		return nil, err
	}

	byType := map[string][]*suite.Suite{}
	for _, file := range files {
		s, err := suite.LoadFile(file)
		if err != nil {
			return nil, err
		}
		if selected[s.Type] {
			byType[s.Type] = append(byType[s.Type], s)
		}
	}
	return byType, nil
}

// runCategories opens one telemetry session per category, runs its suites
// through it and closes it. It returns the total number of failed checks.
func runCategories(ctx context.Context, manager *telemetry.Manager, console *report.Console,
	byType map[string][]*suite.Suite, baseURL, database string, parallel bool) (int, error) {

	categories := make([]string, 0, len(byType))
	for t := range byType {
		categories = append(categories, t)
	}
	sort.Strings(categories)

	totalFailed := 0
	for _, category := range categories {
		suites := byType[category]

		names := make([]string, len(suites))
		for i, s := range suites {
			names[i] = s.Name
		}

		session, err := manager.Open(category, map[string]any{
			"suites":   names,
			"parallel": parallel,
		})
		if err != nil {
			console.Error(err)
			return totalFailed, err
		}
		session.Router().Subscribe(console)
		console.SessionStart(session)

		opts := []suite.RunnerOption{
			suite.WithBaseURL(baseURL),
			suite.WithDatabase(database),
		}
		if parallel {
			opts = append(opts, suite.WithParallel(concurrencyFlag))
		}
		runner := suite.NewRunner(session, opts...)

		var runErr error
		for _, s := range suites {
			if runErr = runner.Run(ctx, s); runErr != nil {
				break
			}
		}

		summary, closeErr := manager.Close(session)
		console.SessionSummary(summary)
		totalFailed += summary.Failed

		if runErr != nil {
			return totalFailed, runErr
		}
		if closeErr != nil {
			Logger.WithError(closeErr).Warn("session closed with degradations")
		}
	}
	return totalFailed, nil
}

// watchSuites re-runs the selected categories whenever a suite file under
// the search paths changes, debouncing rapid successive writes.
func watchSuites(ctx context.Context, cmd *cobra.Command, paths []string, runOnce func() (int, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	for _, arg := range paths {
		info, err := os.Stat(arg)
		if err != nil {
			continue
		}
		if info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watched[path] {
					_ = watcher.Add(path)
					watched[path] = true
				}
				return nil
			})
		} else {
			dir := filepath.Dir(arg)
			if !watched[dir] {
				_ = watcher.Add(dir)
				watched[dir] = true
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && suite.IsSuiteFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running tests...\n\n", event.Name)
					_, _ = runOnce()
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Logger.WithError(err).Warn("watcher error")
		}
	}
}
