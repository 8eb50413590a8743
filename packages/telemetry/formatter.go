package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Channel identifies one output channel of a session. The four file-backed
// channels map to one log file each; ChannelTerminal is the ephemeral
// user-facing channel and is never persisted.
type Channel string

const (
	ChannelDetail      Channel = "detailed"
	ChannelSummary     Channel = "summary"
	ChannelError       Channel = "errors"
	ChannelPerformance Channel = "performance"
	ChannelTerminal    Channel = "terminal"
)

// FileChannels lists the channels that are bound to a log file, in the order
// their files are opened.
var FileChannels = []Channel{ChannelDetail, ChannelSummary, ChannelError, ChannelPerformance}

// FormatTimestamp renders t in the fixed, sortable log timestamp format.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s,%03d", t.Format("2006-01-02 15:04:05"), t.Nanosecond()/int(time.Millisecond))
}

// Format renders an event into the line shape of the given channel:
//
//	detailed:    TIMESTAMP - detailed - LEVEL - MESSAGE
//	summary:     TIMESTAMP - LEVEL - MESSAGE
//	errors:      TIMESTAMP - LEVEL - MESSAGE (full error and stack trace)
//	performance: TIMESTAMP - MESSAGE
//	terminal:    MESSAGE (ASCII-safe)
//
// Format is pure: it never writes, never fails, and applies the ASCII
// substitution table only to the terminal channel.
func Format(e Event, ch Channel) string {
	msg := message(e, ch)
	switch ch {
	case ChannelDetail:
		return fmt.Sprintf("%s - %s - %s - %s", FormatTimestamp(e.Timestamp), ChannelDetail, level(e), msg)
	case ChannelSummary, ChannelError:
		return fmt.Sprintf("%s - %s - %s", FormatTimestamp(e.Timestamp), level(e), msg)
	case ChannelPerformance:
		return fmt.Sprintf("%s - %s", FormatTimestamp(e.Timestamp), msg)
	default:
		return Sanitize(msg)
	}
}

func level(e Event) string {
	switch e.Kind {
	case KindTestFail:
		return "ERROR"
	case KindTestSkip:
		return "WARNING"
	default:
		return "INFO"
	}
}

func message(e Event, ch Channel) string {
	switch e.Kind {
	case KindTestStart:
		return "Starting test: " + e.Name

	case KindTestPass:
		if ch == ChannelSummary {
			return "PASS: " + e.Name
		}
		return fmt.Sprintf("[PASS] Test PASSED: %s%s%s", e.Name, durationSuffix(e), detailsSuffix(e))

	case KindTestFail:
		switch ch {
		case ChannelSummary:
			return fmt.Sprintf("FAIL: %s - %s", e.Name, firstLine(e.ErrorMessage))
		case ChannelError:
			// The errors channel always carries the full message and stack
			// trace, untruncated.
			s := fmt.Sprintf("FAIL: %s\nError: %s", e.Name, e.ErrorMessage)
			if e.StackTrace != "" {
				s += "\n" + e.StackTrace
			}
			return s
		default:
			return fmt.Sprintf("[FAIL] Test FAILED: %s%s - Error: %s%s", e.Name, durationSuffix(e), firstLine(e.ErrorMessage), detailsSuffix(e))
		}

	case KindTestSkip:
		if ch == ChannelSummary {
			return "SKIP: " + e.Name
		}
		msg := "[SKIP] Test SKIPPED: " + e.Name
		if reason, ok := e.Details["reason"].(string); ok && reason != "" {
			msg += fmt.Sprintf(" (Reason: %s)", reason)
		}
		return msg

	case KindDatabaseOperation:
		return "DB: " + e.Name + detailsSuffix(e)

	case KindActionTrace:
		category := e.Category
		if category == "" {
			category = "ACTION"
		}
		return category + ": " + e.Name + detailsSuffix(e)

	case KindPerfMetric:
		msg := e.Metric + ": " + trimFloat(e.Value)
		if e.Unit != "" {
			msg += " " + e.Unit
		}
		if ch == ChannelDetail {
			return "PERF: " + msg
		}
		return msg

	case KindSessionStart:
		return "TEST SESSION STARTED"
	case KindSessionEnd:
		return "TEST SESSION ENDED"
	}
	return e.Name
}

func durationSuffix(e Event) string {
	if e.Duration <= 0 {
		return ""
	}
	return fmt.Sprintf(" (Duration: %.2fs)", e.Duration.Seconds())
}

func detailsSuffix(e Event) string {
	if len(e.Details) == 0 {
		return ""
	}
	data, err := json.Marshal(e.Details)
	if err != nil {
		return " | details: " + stringify(e.Details)
	}
	return " | details: " + string(data)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}

// substitutions maps symbolic glyphs that break constrained terminal codecs
// to ASCII-safe equivalents.
var substitutions = map[rune]string{
	'✓': "[PASS]",
	'✔': "[PASS]",
	'✗': "[FAIL]",
	'✘': "[FAIL]",
	'⚠': "[WARN]",
	'→': "->",
	'←': "<-",
	'•': "*",
	'…': "...",
	'—': "-",
	'–': "-",
	'×': "x",
	'“': `"`,
	'”': `"`,
	'‘': "'",
	'’': "'",
}

// Sanitize rewrites s so it contains only ASCII. Known symbolic glyphs get a
// readable substitution; any other non-ASCII rune becomes '?'. Sinks never
// use this (full-fidelity text goes to the files) but everything written
// to the terminal channel must pass through here so a non-encodable
// character can never raise from the logging path.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		if sub, ok := substitutions[r]; ok {
			b.WriteString(sub)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
