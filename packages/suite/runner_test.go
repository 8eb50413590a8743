package suite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-qa/testpulse/packages/dbcheck"
	"github.com/storefront-qa/testpulse/packages/telemetry"
)

func newTestSession(t *testing.T) (*telemetry.Manager, *telemetry.Session) {
	t.Helper()
	m := telemetry.NewManager(telemetry.WithLogDir(t.TempDir()))
	s, err := m.Open("integration", nil)
	require.NoError(t, err)
	return m, s
}

func storefrontStub() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>storefront</html>")
	})
	mux.HandleFunc("/api/products/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 3, "results": [{"name": "mug"}, {"name": "shirt"}, {"name": "cap"}]}`)
	})
	mux.HandleFunc("/api/broken/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func TestRunner_HTTPChecks(t *testing.T) {
	server := storefrontStub()
	defer server.Close()

	m, session := newTestSession(t)
	r := NewRunner(session, WithBaseURL(server.URL))

	s := &Suite{
		Name: "api",
		Type: "integration",
		Checks: []*Check{
			{
				Name:    "products respond",
				Kind:    "http",
				Request: &RequestSpec{Method: "GET", URL: "/api/products/"},
				Expect: &ExpectSpec{
					Status: 200,
					Body: []BodyExpect{
						{Path: "count", Op: ">", Value: 0},
						{Path: "results.0.name", Op: "==", Value: "mug"},
						{Path: "results.1.name", Op: "contains", Value: "shirt"},
						{Path: "results", Op: "exists"},
					},
				},
			},
			{
				Name:    "broken endpoint fails",
				Kind:    "http",
				Request: &RequestSpec{URL: "/api/broken/"},
				Expect:  &ExpectSpec{Status: 200},
			},
			{
				Name: "skipped check",
				Kind: "http",
				Skip: "endpoint not deployed",
				Request: &RequestSpec{URL: "/api/future/"},
			},
		},
	}

	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunner_BodyExpectOperators(t *testing.T) {
	body := []byte(`{"count": 5, "name": "storefront", "nested": {"ok": true}}`)

	tests := []struct {
		name   string
		expect BodyExpect
		pass   bool
	}{
		{"eq match", BodyExpect{Path: "name", Op: "==", Value: "storefront"}, true},
		{"eq mismatch", BodyExpect{Path: "name", Op: "==", Value: "other"}, false},
		{"default op is eq", BodyExpect{Path: "count", Value: 5}, true},
		{"ne", BodyExpect{Path: "name", Op: "!=", Value: "other"}, true},
		{"gt pass", BodyExpect{Path: "count", Op: ">", Value: 4}, true},
		{"gt fail", BodyExpect{Path: "count", Op: ">", Value: 5}, false},
		{"gte boundary", BodyExpect{Path: "count", Op: ">=", Value: 5}, true},
		{"lt", BodyExpect{Path: "count", Op: "<", Value: 6}, true},
		{"lte fail", BodyExpect{Path: "count", Op: "<=", Value: 4}, false},
		{"contains", BodyExpect{Path: "name", Op: "contains", Value: "store"}, true},
		{"exists nested", BodyExpect{Path: "nested.ok", Op: "exists"}, true},
		{"exists missing", BodyExpect{Path: "absent", Op: "exists"}, false},
		{"unknown op", BodyExpect{Path: "count", Op: "~="}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalBodyExpect(body, tt.expect)
			if tt.pass {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestRunner_SQLCheck(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "shop.db")

	m, session := newTestSession(t)
	seedOrders(t, dsn, session)

	r := NewRunner(session, WithDatabase(dsn))
	s := &Suite{
		Name: "db",
		Type: "integration",
		Checks: []*Check{
			{Name: "orders present", Kind: "sql", Query: "SELECT id FROM shop_order", ExpectRows: intPtr(2)},
			{Name: "wrong row count", Kind: "sql", Query: "SELECT id FROM shop_order", ExpectRows: intPtr(5)},
		},
	}

	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunner_SQLCheckWithoutDatabase(t *testing.T) {
	m, session := newTestSession(t)

	r := NewRunner(session)
	s := &Suite{
		Name: "db",
		Type: "integration",
		Checks: []*Check{
			{Name: "no database", Kind: "sql", Query: "SELECT 1"},
		},
	}

	// No connection string means the check fails as a test, not the run.
	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunner_PerfCheck(t *testing.T) {
	server := storefrontStub()
	defer server.Close()

	m, session := newTestSession(t)
	r := NewRunner(session, WithBaseURL(server.URL))

	s := &Suite{
		Name: "perf",
		Type: "performance",
		Checks: []*Check{
			{Name: "homepage latency", Kind: "perf", Target: "/", Rate: 20, Duration: "500ms", Threshold: "5s"},
		},
	}

	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Passed)

	metrics := map[string]bool{}
	for _, sample := range session.Stats().Samples() {
		metrics[sample.Metric] = true
	}
	assert.True(t, metrics["homepage latency mean latency"])
	assert.True(t, metrics["homepage latency max latency"])
	assert.True(t, metrics["homepage latency requests"])
}

func TestRunner_NavCheck(t *testing.T) {
	server := storefrontStub()
	defer server.Close()

	m, session := newTestSession(t)
	r := NewRunner(session, WithBaseURL(server.URL))

	s := &Suite{
		Name: "browse",
		Type: "browser",
		Checks: []*Check{
			{
				Name: "visit and click",
				Kind: "nav",
				Steps: []*NavStep{
					{Action: "navigate", Path: "/"},
					{Action: "click", Element: "#checkout"},
					{Action: "verify", Path: "/api/products/"},
				},
			},
		},
	}

	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Passed)

	// Each navigate/verify records a page-load sample.
	loads := 0
	for _, sample := range session.Stats().Samples() {
		if sample.Metric == "Page Load Time" {
			loads++
		}
	}
	assert.Equal(t, 2, loads)
}

func TestRunner_Parallel(t *testing.T) {
	server := storefrontStub()
	defer server.Close()

	m, session := newTestSession(t)
	r := NewRunner(session, WithBaseURL(server.URL), WithParallel(4))

	var checks []*Check
	for i := 0; i < 12; i++ {
		checks = append(checks, &Check{
			Name:    fmt.Sprintf("check_%02d", i),
			Kind:    "http",
			Request: &RequestSpec{URL: "/"},
			Expect:  &ExpectSpec{Status: 200},
		})
	}
	s := &Suite{Name: "burst", Type: "integration", Checks: checks}

	require.NoError(t, r.Run(context.Background(), s))

	summary, err := m.Close(session)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Total)
	assert.Equal(t, 12, summary.Passed)
}

func TestRunner_CancelledContext(t *testing.T) {
	m, session := newTestSession(t)
	defer m.Close(session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(session)
	s := &Suite{
		Name: "x",
		Type: "unit",
		Checks: []*Check{
			{Name: "never runs", Kind: "http", Request: &RequestSpec{URL: "http://localhost:1/"}},
		},
	}

	assert.ErrorIs(t, r.Run(ctx, s), context.Canceled)
}

func intPtr(i int) *int { return &i }

// seedOrders creates and populates the shop_order table behind dsn.
func seedOrders(t *testing.T, dsn string, session *telemetry.Session) {
	t.Helper()

	db, err := dbcheck.Open(dsn, session)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.Exec(ctx, "CREATE TABLE shop_order (id INTEGER PRIMARY KEY, total REAL)")
	require.NoError(t, err)
	for _, total := range []float64{19.99, 42.50} {
		_, err = db.Exec(ctx, fmt.Sprintf("INSERT INTO shop_order (total) VALUES (%.2f)", total))
		require.NoError(t, err)
	}
}
