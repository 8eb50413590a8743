package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts() time.Time {
	return time.Date(2026, 8, 23, 14, 15, 2, 7_000_000, time.UTC)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2026-08-23 14:15:02,007", FormatTimestamp(ts()))
}

func TestFormat_DetailShape(t *testing.T) {
	e := TestPass("test_cart_total", 1230*time.Millisecond, nil)
	e.Timestamp = ts()

	line := Format(e, ChannelDetail)
	assert.Equal(t, "2026-08-23 14:15:02,007 - detailed - INFO - [PASS] Test PASSED: test_cart_total (Duration: 1.23s)", line)
}

func TestFormat_SummaryDropsChannelColumn(t *testing.T) {
	e := TestPass("test_cart_total", 0, nil)
	e.Timestamp = ts()

	line := Format(e, ChannelSummary)
	assert.Equal(t, "2026-08-23 14:15:02,007 - INFO - PASS: test_cart_total", line)
}

func TestFormat_FailLevels(t *testing.T) {
	e := TestFail("test_checkout", "boom\nsecond line", "Traceback: ...", 0, nil)
	e.Timestamp = ts()

	t.Run("detail truncates to first line", func(t *testing.T) {
		line := Format(e, ChannelDetail)
		assert.Contains(t, line, "ERROR")
		assert.Contains(t, line, "Error: boom")
		assert.NotContains(t, line, "second line")
	})

	t.Run("errors channel keeps everything", func(t *testing.T) {
		line := Format(e, ChannelError)
		assert.Contains(t, line, "boom\nsecond line")
		assert.Contains(t, line, "Traceback: ...")
	})

	t.Run("summary is one line", func(t *testing.T) {
		line := Format(e, ChannelSummary)
		assert.Equal(t, "2026-08-23 14:15:02,007 - ERROR - FAIL: test_checkout - boom", line)
	})
}

func TestFormat_SkipCarriesReason(t *testing.T) {
	e := TestSkip("test_wishlist", "not implemented")
	e.Timestamp = ts()

	line := Format(e, ChannelDetail)
	assert.Contains(t, line, "WARNING")
	assert.Contains(t, line, "[SKIP] Test SKIPPED: test_wishlist (Reason: not implemented)")
}

func TestFormat_PerformanceShape(t *testing.T) {
	e := PerfMetric("Page Load Time", 0.5, "seconds")
	e.Timestamp = ts()

	line := Format(e, ChannelPerformance)
	assert.Equal(t, "2026-08-23 14:15:02,007 - Page Load Time: 0.5 seconds", line)
}

func TestFormat_TerminalIsSanitized(t *testing.T) {
	e := ActionTrace("BROWSER", "clicked → checkout", nil)
	e.Timestamp = ts()

	line := Format(e, ChannelTerminal)
	assert.Equal(t, "BROWSER: clicked -> checkout", line)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii passthrough", "all tests passed", "all tests passed"},
		{"check mark", "✓ cart works", "[PASS] cart works"},
		{"cross", "✗ checkout broken", "[FAIL] checkout broken"},
		{"warning sign", "⚠ flaky", "[WARN] flaky"},
		{"arrow", "cart → checkout", "cart -> checkout"},
		{"ellipsis and dash", "loading… done — ok", "loading... done - ok"},
		{"curly quotes", "said “no”", `said "no"`},
		{"unknown rune becomes question mark", "café", "caf?"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestTrimFloat(t *testing.T) {
	assert.Equal(t, "0.5", trimFloat(0.5))
	assert.Equal(t, "3", trimFloat(3.0))
	assert.Equal(t, "1.234", trimFloat(1.2341))
}
