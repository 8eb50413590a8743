package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator accumulates counts, durations and per-test records for one
// session and serializes them into a single stats report at close.
//
// Duplicate terminal events for the same name are not deduplicated; the
// router is the authority on event validity, so a duplicate simply double
// counts.
type Aggregator struct {
	mu sync.Mutex

	total   int
	passed  int
	failed  int
	skipped int

	startTime time.Time
	endTime   time.Time

	results []TestResult
	samples []PerformanceSample

	// Terminal-event durations, 1us to 1h range, 3 significant digits
	histogram *hdrhistogram.Histogram
}

// NewAggregator creates an aggregator for a session started at start.
func NewAggregator(start time.Time) *Aggregator {
	return &Aggregator{
		startTime: start,
		histogram: hdrhistogram.New(1, 3_600_000_000, 3),
	}
}

// RecordTerminal increments the counters and appends the result.
func (a *Aggregator) RecordTerminal(r TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	switch r.Status {
	case StatusPass:
		a.passed++
	case StatusFail:
		a.failed++
	case StatusSkip:
		a.skipped++
	}

	a.results = append(a.results, r)

	if r.Duration > 0 {
		us := r.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		if us > 3_600_000_000 {
			us = 3_600_000_000
		}
		_ = a.histogram.RecordValue(us)
	}
}

// RecordSample appends a standalone performance sample.
func (a *Aggregator) RecordSample(s PerformanceSample) {
	a.mu.Lock()
	a.samples = append(a.samples, s)
	a.mu.Unlock()
}

// Counts returns the current counter values.
func (a *Aggregator) Counts() (total, passed, failed, skipped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total, a.passed, a.failed, a.skipped
}

// SuccessRate returns passed/total as a percentage. A session with zero
// tests has a success rate of 0, never an error, never NaN.
func (a *Aggregator) SuccessRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.total == 0 {
		return 0
	}
	return float64(a.passed) / float64(a.total) * 100
}

// Samples returns the recorded performance samples, oldest first.
func (a *Aggregator) Samples() []PerformanceSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PerformanceSample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Finish records the session end time.
func (a *Aggregator) Finish(end time.Time) {
	a.mu.Lock()
	a.endTime = end
	a.mu.Unlock()
}

// LatencySummary holds duration percentiles over terminal events.
type LatencySummary struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Latency returns the duration percentiles over recorded terminal events.
func (a *Aggregator) Latency() LatencySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.histogram
	return LatencySummary{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
	}
}

// Report is the persisted stats document for one session. Field order
// matches the stable key order of the stats JSON schema.
type Report struct {
	TotalTests   int            `json:"total_tests"`
	PassedTests  int            `json:"passed_tests"`
	FailedTests  int            `json:"failed_tests"`
	SkippedTests int            `json:"skipped_tests"`
	StartTime    float64        `json:"start_time"`
	EndTime      float64        `json:"end_time"`
	Duration     float64        `json:"duration"`
	TestDetails  []ReportResult `json:"test_details"`
}

// ReportResult is one test's entry in the stats report.
type ReportResult struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Duration float64        `json:"duration"`
	Error    *string        `json:"error"`
	Details  map[string]any `json:"details"`
}

// Report builds the current stats snapshot.
func (a *Aggregator) Report() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.endTime
	if end.IsZero() {
		end = time.Now()
	}

	report := &Report{
		TotalTests:   a.total,
		PassedTests:  a.passed,
		FailedTests:  a.failed,
		SkippedTests: a.skipped,
		StartTime:    epochSeconds(a.startTime),
		EndTime:      epochSeconds(end),
		Duration:     end.Sub(a.startTime).Seconds(),
		TestDetails:  make([]ReportResult, 0, len(a.results)),
	}

	for _, r := range a.results {
		entry := ReportResult{
			Name:     r.Name,
			Status:   r.Status,
			Duration: r.Duration.Seconds(),
			Details:  r.Details,
		}
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		if r.ErrorMessage != "" {
			msg := r.ErrorMessage
			entry.Error = &msg
		}
		report.TestDetails = append(report.TestDetails, entry)
	}

	return report
}

// WriteJSON serializes the stats report to path.
func (a *Aggregator) WriteJSON(path string) error {
	data, err := json.MarshalIndent(a.Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stats report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing stats report: %w", err)
	}
	return nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
