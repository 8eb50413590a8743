package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLogDir is the log directory root used when none is configured.
	DefaultLogDir = "test_logs"

	// runIDLayout derives the run identifier from the session start time.
	runIDLayout = "20060102_150405"

	bannerWidth = 60
)

// Manager owns session lifecycles: it creates run identifiers, opens the
// sinks and the aggregator, and closes and flushes everything on session
// end. A single manager may serve many concurrent sessions; sessions share
// no state with each other.
type Manager struct {
	logDir string
	clock  func() time.Time
	log    *logrus.Logger

	mu     sync.Mutex
	issued map[string]struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogDir sets the log directory root.
func WithLogDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.logDir = dir
		}
	}
}

// WithClock overrides the time source. Used by tests to pin run identifiers.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger for engine-internal diagnostics. These never go
// to the session's own sinks.
func WithLogger(log *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logDir: DefaultLogDir,
		clock:  time.Now,
		issued: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logrus.New()
	}
	return m
}

// LogDir returns the log directory root.
func (m *Manager) LogDir() string {
	return m.logDir
}

// Session is one run of a test category. It is created by Manager.Open,
// mutated by every routed event, and immutable after Manager.Close.
type Session struct {
	// ID is a process-unique nonce recorded in the session header. The
	// runID stays second-resolution for file naming; the ID disambiguates
	// beyond that.
	ID       string
	RunID    string
	TestType string

	StartTime time.Time

	manager *Manager
	sinks   map[Channel]*Sink
	stats   *Aggregator
	router  *Router
	health  *Health
	closed  atomic.Bool
}

// Open starts a session for the given test type. It creates the log
// directory on demand, derives the run identifier from the current time,
// opens one sink per file channel and writes the session-start header to the
// detail sink. An uncreatable log directory is fatal: the caller learns
// immediately that telemetry is absent instead of running with empty logs.
func (m *Manager) Open(testType string, description map[string]any) (*Session, error) {
	if testType == "" {
		return nil, &EngineError{Op: "open session", Err: fmt.Errorf("test type must not be empty")}
	}

	if err := os.MkdirAll(m.logDir, 0o755); err != nil {
		return nil, &EngineError{Op: "creating log directory", Err: err}
	}

	start := m.clock()
	runID, start := m.nextRunID(testType, start)

	s := &Session{
		ID:        uuid.NewString(),
		RunID:     runID,
		TestType:  testType,
		StartTime: start,
		manager:   m,
		sinks:     make(map[Channel]*Sink, len(FileChannels)),
		stats:     NewAggregator(start),
		health:    &Health{},
	}

	for _, ch := range FileChannels {
		path := filepath.Join(m.logDir, fmt.Sprintf("%s_%s_%s.log", testType, ch, runID))
		sink, err := openSink(path, ch)
		if err != nil {
			for _, open := range s.sinks {
				_ = open.Close()
			}
			return nil, &EngineError{Op: "opening sinks", Channel: ch, Err: err}
		}
		s.sinks[ch] = sink
	}

	s.router = newRouter(s)
	s.writeHeader(description)

	return s, nil
}

// nextRunID reserves a run identifier derived from start. If the same test
// type already took that identifier this process, the derived time is bumped
// one second at a time until the identifier is free, so two sessions can
// never share a file name.
func (m *Manager) nextRunID(testType string, start time.Time) (string, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := start
	for {
		id := t.Format(runIDLayout)
		key := testType + "/" + id
		if _, taken := m.issued[key]; !taken {
			m.issued[key] = struct{}{}
			return id, t
		}
		t = t.Add(time.Second)
	}
}

// Summary is what the manager reports when a session closes: the final
// counters, timing, file locations and the engine's own health.
type Summary struct {
	RunID       string
	TestType    string
	Total       int
	Passed      int
	Failed      int
	Skipped     int
	Duration    time.Duration
	SuccessRate float64
	Latency     LatencySummary
	LogDir      string
	StatsPath   string
	Health      *Health
}

// Close ends the session: it writes the session-end banners and summary to
// the sinks, serializes the stats report, flushes and closes every sink and
// marks the session closed. Further events for this session are rejected
// with ErrSessionClosed.
//
// The returned Summary is always valid, even when err is non-nil; a
// serialize or close failure degrades the session but never erases what was
// already flushed.
func (m *Manager) Close(s *Session) (*Summary, error) {
	if !s.closed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("run %s: %w", s.RunID, ErrSessionClosed)
	}

	end := m.clock()
	s.stats.Finish(end)
	duration := end.Sub(s.StartTime)

	// Whole-session duration is itself a performance sample.
	s.stats.RecordSample(PerformanceSample{
		Metric:    "Session Duration",
		Value:     duration.Seconds(),
		Unit:      "seconds",
		Timestamp: end,
	})
	s.writeLine(ChannelPerformance, fmt.Sprintf("%s - Session Duration: %.2f seconds", FormatTimestamp(end), duration.Seconds()))

	s.writeBanner(ChannelDetail, end, "TEST SESSION ENDED")
	s.writeBanner(ChannelSummary, end, "TEST SUMMARY")
	for _, line := range s.summaryLines(duration) {
		s.detailLine(end, "INFO", line)
		s.summaryLine(end, "INFO", line)
	}
	s.writeLatency(end)

	statsPath := filepath.Join(m.logDir, fmt.Sprintf("%s_stats_%s.json", s.TestType, s.RunID))
	var closeErr error
	if err := s.stats.WriteJSON(statsPath); err != nil {
		engErr := &EngineError{Op: "serializing stats report", Err: err}
		s.health.record(engErr)
		m.log.WithFields(logrus.Fields{"run_id": s.RunID, "path": statsPath}).WithError(err).Error("stats report not written")
		closeErr = engErr
	}

	for _, ch := range FileChannels {
		if err := s.sinks[ch].Close(); err != nil {
			engErr := &EngineError{Op: "closing sink", Channel: ch, Err: err}
			s.health.record(engErr)
			m.log.WithFields(logrus.Fields{"run_id": s.RunID, "channel": ch}).WithError(err).Warn("sink close failed")
			if closeErr == nil {
				closeErr = engErr
			}
		}
	}

	total, passed, failed, skipped := s.stats.Counts()
	return &Summary{
		RunID:       s.RunID,
		TestType:    s.TestType,
		Total:       total,
		Passed:      passed,
		Failed:      failed,
		Skipped:     skipped,
		Duration:    duration,
		SuccessRate: s.stats.SuccessRate(),
		Latency:     s.stats.Latency(),
		LogDir:      m.logDir,
		StatsPath:   statsPath,
		Health:      s.health,
	}, closeErr
}

// Emit routes one event through the session's router.
func (s *Session) Emit(e Event) error {
	return s.router.Emit(e)
}

// Router returns the session's event router.
func (s *Session) Router() *Router {
	return s.router
}

// Stats returns the session's aggregator.
func (s *Session) Stats() *Aggregator {
	return s.stats
}

// Health returns the session's engine health record.
func (s *Session) Health() *Health {
	return s.health
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// LogDir returns the directory holding this session's files.
func (s *Session) LogDir() string {
	return s.manager.logDir
}

// LogFiles returns the session's log file paths by channel.
func (s *Session) LogFiles() map[Channel]string {
	out := make(map[Channel]string, len(s.sinks))
	for ch, sink := range s.sinks {
		out[ch] = sink.Path()
	}
	return out
}

// writeLine writes one line to a sink, recording a degradation instead of
// failing when the write does not succeed. A failed write on any other
// channel leaves a note in the errors sink, which may still be writable.
func (s *Session) writeLine(ch Channel, line string) {
	sink, ok := s.sinks[ch]
	if !ok {
		return
	}
	err := sink.WriteLine(line)
	if err == nil {
		return
	}

	engErr := &EngineError{Op: "writing line", Channel: ch, Err: err}
	s.health.record(engErr)
	s.manager.log.WithFields(logrus.Fields{
		"run_id":  s.RunID,
		"channel": ch,
	}).WithError(err).Warn("sink write failed")

	if ch != ChannelError {
		_ = s.sinks[ChannelError].WriteLine(fmt.Sprintf("%s - ERROR - %v", FormatTimestamp(s.manager.clock()), engErr))
	}
}

func (s *Session) detailLine(ts time.Time, level, msg string) {
	s.writeLine(ChannelDetail, fmt.Sprintf("%s - %s - %s - %s", FormatTimestamp(ts), ChannelDetail, level, msg))
}

func (s *Session) summaryLine(ts time.Time, level, msg string) {
	s.writeLine(ChannelSummary, fmt.Sprintf("%s - %s - %s", FormatTimestamp(ts), level, msg))
}

func (s *Session) writeBanner(ch Channel, ts time.Time, title string) {
	rule := strings.Repeat("=", bannerWidth)
	lines := []string{rule, title, rule}
	for _, line := range lines {
		switch ch {
		case ChannelDetail:
			s.detailLine(ts, "INFO", line)
		case ChannelSummary:
			s.summaryLine(ts, "INFO", line)
		}
	}
}

func (s *Session) writeHeader(description map[string]any) {
	ts := s.StartTime
	s.writeBanner(ChannelDetail, ts, "TEST SESSION STARTED")
	s.detailLine(ts, "INFO", "Test Type: "+s.TestType)
	s.detailLine(ts, "INFO", "Run ID: "+s.RunID)
	s.detailLine(ts, "INFO", "Session: "+s.ID)

	if len(description) > 0 {
		data, err := json.Marshal(scrubDetails(description))
		if err != nil {
			data = []byte(stringify(description))
		}
		s.detailLine(ts, "INFO", "Session Info: "+string(data))
	}
}

func (s *Session) summaryLines(duration time.Duration) []string {
	total, passed, failed, skipped := s.stats.Counts()
	return []string{
		fmt.Sprintf("Test Type: %s", s.TestType),
		fmt.Sprintf("Total Tests: %d", total),
		fmt.Sprintf("Passed: %d", passed),
		fmt.Sprintf("Failed: %d", failed),
		fmt.Sprintf("Skipped: %d", skipped),
		fmt.Sprintf("Duration: %.2fs", duration.Seconds()),
		fmt.Sprintf("Success Rate: %.1f%%", s.stats.SuccessRate()),
	}
}

func (s *Session) writeLatency(ts time.Time) {
	lat := s.stats.Latency()
	if lat.Count == 0 {
		return
	}
	s.writeLine(ChannelPerformance, fmt.Sprintf(
		"%s - Test Latency: count=%d min=%s max=%s mean=%s p50=%s p95=%s p99=%s",
		FormatTimestamp(ts), lat.Count, lat.Min, lat.Max, lat.Mean, lat.P50, lat.P95, lat.P99))
}
