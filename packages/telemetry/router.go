package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// Listener observes every event accepted by a router. The console reporter
// registers as a listener to drive the ephemeral terminal channel.
type Listener interface {
	OnEvent(e Event)
}

// Router is the single ingestion point for a session's events. It fans each
// event out to the subset of sinks and the aggregator that care about it.
//
// Ingestion enforces non-decreasing timestamps within the session; each sink
// then serializes its own writes, so unrelated channels never block each
// other while lines within one channel are never interleaved.
type Router struct {
	session *Session

	mu        sync.Mutex
	lastTS    time.Time
	listeners []Listener
}

func newRouter(s *Session) *Router {
	return &Router{session: s, lastTS: s.StartTime}
}

// Subscribe registers a listener for every subsequently emitted event.
func (r *Router) Subscribe(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Emit ingests one event. Events for a closed session are rejected with
// ErrSessionClosed. A failed sink write degrades the session (recorded in
// its Health) but does not abort the test run being observed, so Emit
// returns nil in that case.
func (r *Router) Emit(e Event) error {
	if r.session.Closed() {
		return fmt.Errorf("run %s: %w", r.session.RunID, ErrSessionClosed)
	}

	e.RunID = r.session.RunID
	if e.Timestamp.IsZero() {
		e.Timestamp = r.session.manager.clock()
	}
	e.Details = scrubDetails(e.Details)

	r.mu.Lock()
	if e.Timestamp.Before(r.lastTS) {
		e.Timestamp = r.lastTS
	} else {
		r.lastTS = e.Timestamp
	}
	listeners := r.listeners
	r.mu.Unlock()

	s := r.session
	switch e.Kind {
	case KindSessionStart, KindSessionEnd:
		// Lifecycle is owned by the session manager; Open and Close write
		// the banners themselves.

	case KindTestStart:
		s.writeLine(ChannelDetail, Format(e, ChannelDetail))

	case KindTestPass, KindTestFail, KindTestSkip:
		s.writeLine(ChannelDetail, Format(e, ChannelDetail))
		s.writeLine(ChannelSummary, Format(e, ChannelSummary))
		if e.Kind == KindTestFail {
			s.writeLine(ChannelError, Format(e, ChannelError))
		}
		s.stats.RecordTerminal(terminalResult(e))

	case KindDatabaseOperation, KindActionTrace:
		s.writeLine(ChannelDetail, Format(e, ChannelDetail))

	case KindPerfMetric:
		s.writeLine(ChannelPerformance, Format(e, ChannelPerformance))
		s.stats.RecordSample(PerformanceSample{
			Metric:    e.Metric,
			Value:     e.Value,
			Unit:      e.Unit,
			Timestamp: e.Timestamp,
		})

	default:
		return fmt.Errorf("unknown event kind %d", e.Kind)
	}

	for _, l := range listeners {
		l.OnEvent(e)
	}
	return nil
}

func terminalResult(e Event) TestResult {
	r := TestResult{
		Name:     e.Name,
		Duration: e.Duration,
		Details:  e.Details,
	}
	switch e.Kind {
	case KindTestPass:
		r.Status = StatusPass
	case KindTestFail:
		r.Status = StatusFail
		r.ErrorMessage = e.ErrorMessage
	case KindTestSkip:
		r.Status = StatusSkip
	}
	return r
}
