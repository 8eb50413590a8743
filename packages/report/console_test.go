package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-qa/testpulse/packages/telemetry"
)

func newTestConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(WithWriter(&buf), WithNoColor(true)), &buf
}

func TestConsole_Lifecycle(t *testing.T) {
	c, buf := newTestConsole()

	c.OnEvent(telemetry.TestStart("test_cart"))
	c.OnEvent(telemetry.TestPass("test_cart", 1230*time.Millisecond, nil))
	c.OnEvent(telemetry.TestFail("test_checkout", "boom\nsecond", "", 0, nil))
	c.OnEvent(telemetry.TestSkip("test_wishlist", "later"))
	c.OnEvent(telemetry.DatabaseOperation("query", nil))

	out := buf.String()
	assert.Contains(t, out, "[RUNNING] test_cart")
	assert.Contains(t, out, "[PASS] test_cart (1.23s)")
	assert.Contains(t, out, "[FAIL] test_checkout (boom)")
	assert.NotContains(t, out, "second", "terminal shows the first error line only")
	assert.Contains(t, out, "[SKIP] test_wishlist")
	assert.Contains(t, out, "[DB] query")
}

func TestConsole_QuietForPerfMetrics(t *testing.T) {
	c, buf := newTestConsole()

	c.OnEvent(telemetry.PerfMetric("Page Load Time", 0.4, "seconds"))
	c.OnEvent(telemetry.ActionTrace("BROWSER", "clicked checkout", nil))

	assert.Empty(t, buf.String())
}

func TestConsole_SanitizesNonASCII(t *testing.T) {
	c, buf := newTestConsole()

	c.OnEvent(telemetry.TestPass("test_glyphs ✓ café", 0, nil))

	out := buf.String()
	assert.Contains(t, out, "test_glyphs [PASS] caf?")
	for _, r := range out {
		assert.LessOrEqual(t, r, rune(127), "terminal output must be ASCII")
	}
}

func TestConsole_SessionSummary(t *testing.T) {
	c, buf := newTestConsole()

	c.SessionSummary(&telemetry.Summary{
		RunID:       "20260823_141502",
		TestType:    "unit",
		Total:       4,
		Passed:      2,
		Failed:      1,
		Skipped:     1,
		Duration:    5 * time.Second,
		SuccessRate: 50,
		Latency:     telemetry.LatencySummary{Count: 3, P50: 10 * time.Millisecond, P95: 20 * time.Millisecond, P99: 25 * time.Millisecond, Max: 25 * time.Millisecond},
		LogDir:      "test_logs",
		Health:      &telemetry.Health{},
	})

	out := buf.String()
	assert.Contains(t, out, "TEST SUMMARY")
	assert.Contains(t, out, "Total Tests: 4")
	assert.Contains(t, out, "Passed: 2")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Skipped: 1")
	assert.Contains(t, out, "Duration: 5.00s")
	assert.Contains(t, out, "Success Rate: 50.0%")
	assert.Contains(t, out, "Latency: p50:")
	assert.Contains(t, out, "Logs saved to: test_logs")
}

func TestConsole_SessionSummaryZeroTests(t *testing.T) {
	c, buf := newTestConsole()

	c.SessionSummary(&telemetry.Summary{Health: &telemetry.Health{}})

	out := buf.String()
	assert.Contains(t, out, "Success Rate: 0.0%")
	assert.NotContains(t, out, "Latency:", "no latency line without terminal events")
}

func TestConsole_AsRouterListener(t *testing.T) {
	c, buf := newTestConsole()

	m := telemetry.NewManager(telemetry.WithLogDir(t.TempDir()))
	s, err := m.Open("unit", nil)
	require.NoError(t, err)
	s.Router().Subscribe(c)

	require.NoError(t, s.Emit(telemetry.TestPass("test_live", 0, nil)))
	_, err = m.Close(s)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "[PASS] test_live")
}
