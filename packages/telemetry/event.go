package telemetry

import (
	"encoding/json"
	"time"
)

// Kind identifies the variant of an Event.
type Kind int

const (
	KindSessionStart Kind = iota
	KindSessionEnd
	KindTestStart
	KindTestPass
	KindTestFail
	KindTestSkip
	KindDatabaseOperation
	KindActionTrace
	KindPerfMetric
)

func (k Kind) String() string {
	switch k {
	case KindSessionStart:
		return "session_start"
	case KindSessionEnd:
		return "session_end"
	case KindTestStart:
		return "test_start"
	case KindTestPass:
		return "test_pass"
	case KindTestFail:
		return "test_fail"
	case KindTestSkip:
		return "test_skip"
	case KindDatabaseOperation:
		return "database_operation"
	case KindActionTrace:
		return "action_trace"
	case KindPerfMetric:
		return "perf_metric"
	}
	return "unknown"
}

// Terminal reports whether the kind ends a test's lifecycle.
func (k Kind) Terminal() bool {
	return k == KindTestPass || k == KindTestFail || k == KindTestSkip
}

// Status is the terminal outcome of a single test.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// Event is the common vocabulary shared by every runner adapter. Only the
// fields relevant to the Kind are populated; Name, Timestamp and RunID are
// common to all kinds. Timestamp and RunID may be left zero; the router
// fills them at ingestion.
type Event struct {
	Kind      Kind
	Name      string
	Timestamp time.Time
	RunID     string

	// Terminal events
	Duration     time.Duration
	ErrorMessage string
	StackTrace   string

	// PerfMetric
	Metric string
	Value  float64
	Unit   string

	// ActionTrace prefix, e.g. "ACTION" or "BROWSER"
	Category string

	// Free-form scalar details for DB/action traces and terminal events
	Details map[string]any
}

// TestStart marks a test as running.
func TestStart(name string) Event {
	return Event{Kind: KindTestStart, Name: name}
}

// TestPass records a successful test.
func TestPass(name string, duration time.Duration, details map[string]any) Event {
	return Event{Kind: KindTestPass, Name: name, Duration: duration, Details: details}
}

// TestFail records a failed test with its error message and stack trace.
func TestFail(name, errorMessage, stackTrace string, duration time.Duration, details map[string]any) Event {
	return Event{
		Kind:         KindTestFail,
		Name:         name,
		Duration:     duration,
		ErrorMessage: errorMessage,
		StackTrace:   stackTrace,
		Details:      details,
	}
}

// TestSkip records a skipped test. The reason, if any, is carried in the
// details map.
func TestSkip(name, reason string) Event {
	e := Event{Kind: KindTestSkip, Name: name}
	if reason != "" {
		e.Details = map[string]any{"reason": reason}
	}
	return e
}

// DatabaseOperation traces a database operation performed during a test.
func DatabaseOperation(operation string, details map[string]any) Event {
	return Event{Kind: KindDatabaseOperation, Name: operation, Details: details}
}

// ActionTrace records a categorized runner action, e.g. a browser click.
func ActionTrace(category, action string, details map[string]any) Event {
	return Event{Kind: KindActionTrace, Name: action, Category: category, Details: details}
}

// PerfMetric records a standalone performance measurement. It is not tied to
// a single test and may be emitted at any point in the session.
func PerfMetric(metric string, value float64, unit string) Event {
	return Event{Kind: KindPerfMetric, Name: metric, Metric: metric, Value: value, Unit: unit}
}

// TestResult is the record produced once per test at its terminal event.
type TestResult struct {
	Name         string
	Status       Status
	Duration     time.Duration
	ErrorMessage string
	Details      map[string]any
}

// PerformanceSample is a single recorded performance measurement.
type PerformanceSample struct {
	Metric    string
	Value     float64
	Unit      string
	Timestamp time.Time
}

// scrubDetails returns a copy of details in which every value is guaranteed
// to survive JSON marshaling. Values that cannot be marshaled are replaced
// by their string rendering so a bad detail value can never fail the
// serialize step at session close.
func scrubDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if _, err := json.Marshal(v); err != nil {
			out[k] = stringify(v)
			continue
		}
		out[k] = v
	}
	return out
}
