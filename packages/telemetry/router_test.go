package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	events []Event
}

func (l *recordingListener) OnEvent(e Event) {
	l.events = append(l.events, e)
}

func TestRouter_FillsRunIDAndTimestamp(t *testing.T) {
	m, s := openTestSession(t, "unit")
	defer m.Close(s)

	listener := &recordingListener{}
	s.Router().Subscribe(listener)

	require.NoError(t, s.Emit(TestPass("a", 0, nil)))

	require.Len(t, listener.events, 1)
	got := listener.events[0]
	assert.Equal(t, s.RunID, got.RunID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestRouter_TimestampsNeverDecrease(t *testing.T) {
	m, s := openTestSession(t, "unit")
	defer m.Close(s)

	listener := &recordingListener{}
	s.Router().Subscribe(listener)

	future := time.Now().Add(time.Hour)
	e1 := TestPass("a", 0, nil)
	e1.Timestamp = future
	require.NoError(t, s.Emit(e1))

	// An event stamped earlier by its producer is clamped at ingestion.
	e2 := TestPass("b", 0, nil)
	e2.Timestamp = future.Add(-30 * time.Minute)
	require.NoError(t, s.Emit(e2))

	require.Len(t, listener.events, 2)
	assert.False(t, listener.events[1].Timestamp.Before(listener.events[0].Timestamp))
	assert.Equal(t, future, listener.events[1].Timestamp)
}

func TestRouter_PerfMetricRoutesToPerformanceOnly(t *testing.T) {
	m, s := openTestSession(t, "performance")

	require.NoError(t, s.Emit(PerfMetric("Query Time", 12.5, "ms")))
	_, err := m.Close(s)
	require.NoError(t, err)

	assert.Contains(t, readLog(t, s, ChannelPerformance), "Query Time: 12.5 ms")
	assert.NotContains(t, readLog(t, s, ChannelDetail), "Query Time")
	assert.NotContains(t, readLog(t, s, ChannelSummary), "Query Time")

	samples := s.Stats().Samples()
	require.Len(t, samples, 2) // metric plus the session-duration sample
	assert.Equal(t, "Query Time", samples[0].Metric)
	assert.Equal(t, 12.5, samples[0].Value)

	// Perf metrics never touch the test counters.
	total, _, _, _ := s.Stats().Counts()
	assert.Equal(t, 0, total)
}

func TestRouter_DatabaseOperationDetailOnly(t *testing.T) {
	m, s := openTestSession(t, "integration")

	require.NoError(t, s.Emit(DatabaseOperation("query", map[string]any{"rows": 3})))
	_, err := m.Close(s)
	require.NoError(t, err)

	assert.Contains(t, readLog(t, s, ChannelDetail), `DB: query | details: {"rows":3}`)
	assert.NotContains(t, readLog(t, s, ChannelSummary), "DB: query")
}

func TestRouter_ScrubsUnmarshalableDetails(t *testing.T) {
	m, s := openTestSession(t, "unit")
	defer m.Close(s)

	listener := &recordingListener{}
	s.Router().Subscribe(listener)

	// A channel can never be marshaled; it must be replaced at ingestion so
	// the close-time serialize step cannot fail.
	require.NoError(t, s.Emit(TestPass("a", 0, map[string]any{
		"bad":  make(chan int),
		"good": 42,
	})))

	require.Len(t, listener.events, 1)
	details := listener.events[0].Details
	assert.Equal(t, 42, details["good"])
	assert.IsType(t, "", details["bad"])
}

func TestRouter_UnknownKindRejected(t *testing.T) {
	m, s := openTestSession(t, "unit")
	defer m.Close(s)

	err := s.Emit(Event{Kind: Kind(99), Name: "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event kind")
}
