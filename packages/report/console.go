// Package report renders session progress and the closing summary on the
// user's terminal. All output passes through the ASCII-safe substitution
// table so a constrained terminal codec can never fail the logging path.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/storefront-qa/testpulse/packages/telemetry"
)

// Console is the terminal-facing reporter. It implements
// telemetry.Listener, so it can be subscribed to a session's router as the
// ephemeral fifth channel.
type Console struct {
	writer  io.Writer
	noColor bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
}

// Option configures the console reporter.
type Option func(*Console)

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(c *Console) {
		c.writer = w
	}
}

// WithNoColor disables colored output.
func WithNoColor(noColor bool) Option {
	return func(c *Console) {
		c.noColor = noColor
	}
}

// New creates a console reporter.
func New(opts ...Option) *Console {
	c := &Console{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	color.NoColor = c.noColor
	c.green = color.New(color.FgGreen)
	c.red = color.New(color.FgRed)
	c.yellow = color.New(color.FgYellow)
	c.cyan = color.New(color.FgCyan)
	c.bold = color.New(color.Bold)

	return c
}

// Header prints the tool banner.
func (c *Console) Header(version string) {
	c.bold.Fprintf(c.writer, "testpulse %s\n", version)
}

// SessionStart announces a newly opened session.
func (c *Console) SessionStart(s *telemetry.Session) {
	fmt.Fprintf(c.writer, "[START] Starting %s tests...\n", strings.ToUpper(s.TestType))
	fmt.Fprintf(c.writer, "[LOGS] Logs: %s\n", c.safe(s.LogDir()))
}

// OnEvent renders one status line per test lifecycle event. Non-lifecycle
// events keep the terminal quiet except for database traces, which are
// scannable by their [DB] tag.
func (c *Console) OnEvent(e telemetry.Event) {
	name := c.safe(e.Name)
	switch e.Kind {
	case telemetry.KindTestStart:
		fmt.Fprintf(c.writer, "[RUNNING] %s\n", name)
	case telemetry.KindTestPass:
		c.green.Fprintf(c.writer, "[PASS]")
		fmt.Fprintf(c.writer, " %s", name)
		if e.Duration > 0 {
			c.cyan.Fprintf(c.writer, " (%.2fs)", e.Duration.Seconds())
		}
		fmt.Fprintln(c.writer)
	case telemetry.KindTestFail:
		c.red.Fprintf(c.writer, "[FAIL]")
		fmt.Fprintf(c.writer, " %s", name)
		if e.ErrorMessage != "" {
			c.red.Fprintf(c.writer, " (%s)", c.safe(firstLine(e.ErrorMessage)))
		}
		fmt.Fprintln(c.writer)
	case telemetry.KindTestSkip:
		c.yellow.Fprintf(c.writer, "[SKIP]")
		fmt.Fprintf(c.writer, " %s\n", name)
	case telemetry.KindDatabaseOperation:
		fmt.Fprintf(c.writer, "[DB] %s\n", name)
	}
}

// SessionSummary prints the closing block for one session: counters,
// duration, success rate and the log directory. It is printed regardless of
// how many engine-internal degradations occurred.
func (c *Console) SessionSummary(sum *telemetry.Summary) {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(c.writer)
	fmt.Fprintln(c.writer, rule)
	c.bold.Fprintln(c.writer, "TEST SUMMARY")
	fmt.Fprintln(c.writer, rule)
	fmt.Fprintf(c.writer, "Total Tests: %d\n", sum.Total)
	c.green.Fprintf(c.writer, "Passed: %d\n", sum.Passed)
	if sum.Failed > 0 {
		c.red.Fprintf(c.writer, "Failed: %d\n", sum.Failed)
	} else {
		fmt.Fprintf(c.writer, "Failed: %d\n", sum.Failed)
	}
	if sum.Skipped > 0 {
		c.yellow.Fprintf(c.writer, "Skipped: %d\n", sum.Skipped)
	} else {
		fmt.Fprintf(c.writer, "Skipped: %d\n", sum.Skipped)
	}
	fmt.Fprintf(c.writer, "Duration: %.2fs\n", sum.Duration.Seconds())
	fmt.Fprintf(c.writer, "Success Rate: %.1f%%\n", sum.SuccessRate)

	if sum.Latency.Count > 0 {
		fmt.Fprintf(c.writer, "Latency: p50: %s | p95: %s | p99: %s | max: %s\n",
			sum.Latency.P50, sum.Latency.P95, sum.Latency.P99, sum.Latency.Max)
	}

	if !sum.Health.Healthy() {
		c.yellow.Fprintf(c.writer, "Telemetry degraded: %d engine error(s), see stderr\n", len(sum.Health.Degradations()))
	}

	fmt.Fprintf(c.writer, "Logs saved to: %s\n", c.safe(sum.LogDir))
}

// Error prints an engine error.
func (c *Console) Error(err error) {
	c.red.Fprintf(c.writer, "Error:")
	fmt.Fprintf(c.writer, " %s\n", c.safe(err.Error()))
}

func (c *Console) safe(s string) string {
	return telemetry.Sanitize(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
