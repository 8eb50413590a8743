package suite

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/storefront-qa/testpulse/packages/adapter"
	"github.com/storefront-qa/testpulse/packages/dbcheck"
	"github.com/storefront-qa/testpulse/packages/telemetry"
)

const maxBodyBytes = 4 << 20

// Runner executes the checks of a suite against the storefront, emitting
// telemetry for every check. One runner serves one session.
type Runner struct {
	session     *telemetry.Session
	client      *http.Client
	baseURL     string
	database    string
	parallel    bool
	concurrency int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBaseURL sets the default base URL for relative check targets.
func WithBaseURL(u string) RunnerOption {
	return func(r *Runner) {
		r.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDatabase sets the default connection string for sql checks.
func WithDatabase(dsn string) RunnerOption {
	return func(r *Runner) {
		r.database = dsn
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) RunnerOption {
	return func(r *Runner) {
		r.client = c
	}
}

// WithParallel enables bounded parallel check execution.
func WithParallel(concurrency int) RunnerOption {
	return func(r *Runner) {
		r.parallel = true
		if concurrency > 0 {
			r.concurrency = concurrency
		}
	}
}

// NewRunner creates a runner emitting into the given session.
func NewRunner(session *telemetry.Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		session:     session,
		client:      &http.Client{Timeout: 30 * time.Second},
		concurrency: 5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every check of the suite. Check failures are recorded as
// telemetry, never returned; the error covers engine-side problems only
// (context cancellation, an unreachable check database).
func (r *Runner) Run(ctx context.Context, s *Suite) error {
	var db *dbcheck.Client
	if dsn := firstNonEmpty(s.Database, r.database); dsn != "" && hasSQLChecks(s) {
		var err error
		db, err = dbcheck.Open(dsn, r.session)
		if err != nil {
			return fmt.Errorf("suite %s: %w", s.Name, err)
		}
		defer db.Close()
	}

	baseURL := firstNonEmpty(s.BaseURL, r.baseURL)

	if r.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, check := range s.Checks {
			check := check
			g.Go(func() error {
				return r.runCheck(gctx, baseURL, db, check)
			})
		}
		return g.Wait()
	}

	for _, check := range s.Checks {
		if err := r.runCheck(ctx, baseURL, db, check); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runCheck(ctx context.Context, baseURL string, db *dbcheck.Client, c *Check) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.Skip != "" {
		return r.session.Emit(telemetry.TestSkip(c.Name, c.Skip))
	}

	if err := r.session.Emit(telemetry.TestStart(c.Name)); err != nil {
		return err
	}

	start := time.Now()
	var (
		details  map[string]any
		checkErr error
		trace    string
	)

	switch c.Kind {
	case "http":
		details, trace, checkErr = r.httpCheck(ctx, baseURL, c)
	case "sql":
		details, checkErr = r.sqlCheck(ctx, db, c)
	case "perf":
		details, checkErr = r.perfCheck(ctx, baseURL, c)
	case "nav":
		details, checkErr = r.navCheck(ctx, baseURL, c)
	default:
		checkErr = fmt.Errorf("unknown check kind %q", c.Kind)
	}

	took := time.Since(start)
	if checkErr != nil {
		return r.session.Emit(telemetry.TestFail(c.Name, checkErr.Error(), trace, took, details))
	}
	return r.session.Emit(telemetry.TestPass(c.Name, took, details))
}

// httpCheck sends the request and evaluates the status and body
// expectations. The returned trace lists every failed expectation.
func (r *Runner) httpCheck(ctx context.Context, baseURL string, c *Check) (map[string]any, string, error) {
	method := c.Request.Method
	if method == "" {
		method = http.MethodGet
	}

	url := resolveURL(baseURL, c.Request.URL)
	var body io.Reader
	if c.Request.Body != "" {
		body = strings.NewReader(c.Request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.Request.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading response: %w", err)
	}

	details := map[string]any{
		"method": method,
		"url":    url,
		"status": resp.StatusCode,
	}

	var failures []string
	if c.Expect != nil {
		if c.Expect.Status != 0 && resp.StatusCode != c.Expect.Status {
			failures = append(failures, fmt.Sprintf("status: expected %d, got %d", c.Expect.Status, resp.StatusCode))
		}
		for _, be := range c.Expect.Body {
			if msg := evalBodyExpect(data, be); msg != "" {
				failures = append(failures, msg)
			}
		}
	}

	if len(failures) > 0 {
		return details, strings.Join(failures, "\n"), fmt.Errorf("%d expectation(s) failed: %s", len(failures), failures[0])
	}
	return details, "", nil
}

func evalBodyExpect(body []byte, be BodyExpect) string {
	result := gjson.GetBytes(body, be.Path)

	switch be.Op {
	case "exists":
		if !result.Exists() {
			return fmt.Sprintf("body.%s: expected to exist", be.Path)
		}
		return ""
	case "contains":
		if !strings.Contains(result.String(), fmt.Sprintf("%v", be.Value)) {
			return fmt.Sprintf("body.%s: expected to contain %v, got %q", be.Path, be.Value, result.String())
		}
		return ""
	case "==", "":
		if result.String() != fmt.Sprintf("%v", be.Value) {
			return fmt.Sprintf("body.%s: expected %v, got %q", be.Path, be.Value, result.String())
		}
		return ""
	case "!=":
		if result.String() == fmt.Sprintf("%v", be.Value) {
			return fmt.Sprintf("body.%s: expected not %v", be.Path, be.Value)
		}
		return ""
	case ">", ">=", "<", "<=":
		want := toFloat(be.Value)
		got := result.Float()
		ok := false
		switch be.Op {
		case ">":
			ok = got > want
		case ">=":
			ok = got >= want
		case "<":
			ok = got < want
		case "<=":
			ok = got <= want
		}
		if !ok {
			return fmt.Sprintf("body.%s: expected %s %v, got %v", be.Path, be.Op, want, got)
		}
		return ""
	default:
		return fmt.Sprintf("body.%s: unknown operator %q", be.Path, be.Op)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		var f float64
		_, _ = fmt.Sscanf(n, "%g", &f)
		return f
	}
	return 0
}

// sqlCheck runs the query through the traced database client and asserts
// the returned row count when one is expected.
func (r *Runner) sqlCheck(ctx context.Context, db *dbcheck.Client, c *Check) (map[string]any, error) {
	if db == nil {
		return nil, fmt.Errorf("sql check without a configured database")
	}

	result, err := db.Query(ctx, c.Query)
	if err != nil {
		return nil, err
	}

	details := map[string]any{"rows": len(result.Rows)}
	if c.ExpectRows != nil && len(result.Rows) != *c.ExpectRows {
		return details, fmt.Errorf("expected %d row(s), got %d", *c.ExpectRows, len(result.Rows))
	}
	return details, nil
}

// perfCheck paces GET requests at the configured rate for the configured
// window and emits the aggregate latency as performance metrics. It fails
// when any request errors or the mean latency exceeds the threshold.
func (r *Runner) perfCheck(ctx context.Context, baseURL string, c *Check) (map[string]any, error) {
	window := 5 * time.Second
	if c.Duration != "" {
		d, err := time.ParseDuration(c.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", c.Duration, err)
		}
		window = d
	}

	perSecond := c.Rate
	if perSecond <= 0 {
		perSecond = 10
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	url := resolveURL(baseURL, c.Target)
	deadline := time.Now().Add(window)

	var (
		count    int
		errCount int
		total    time.Duration
		max      time.Duration
	)

	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		resp, err := r.client.Do(req)
		took := time.Since(start)

		count++
		if err != nil {
			errCount++
			continue
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()

		total += took
		if took > max {
			max = took
		}
	}

	details := map[string]any{
		"requests": count,
		"errors":   errCount,
		"target":   url,
	}
	if count == 0 {
		return details, fmt.Errorf("no requests completed within %s", window)
	}

	completed := count - errCount
	var mean time.Duration
	if completed > 0 {
		mean = total / time.Duration(completed)
	}
	details["mean_ms"] = float64(mean.Microseconds()) / 1000
	details["max_ms"] = float64(max.Microseconds()) / 1000

	_ = r.session.Emit(telemetry.PerfMetric(c.Name+" mean latency", float64(mean.Microseconds())/1000, "ms"))
	_ = r.session.Emit(telemetry.PerfMetric(c.Name+" max latency", float64(max.Microseconds())/1000, "ms"))
	_ = r.session.Emit(telemetry.PerfMetric(c.Name+" requests", float64(count), ""))

	if errCount > 0 {
		return details, fmt.Errorf("%d of %d requests failed", errCount, count)
	}
	if c.Threshold != "" {
		limit, err := time.ParseDuration(c.Threshold)
		if err != nil {
			return details, fmt.Errorf("invalid threshold %q: %w", c.Threshold, err)
		}
		if mean > limit {
			return details, fmt.Errorf("mean latency %s exceeds threshold %s", mean, limit)
		}
	}
	return details, nil
}

// navCheck drives the browser adapter through the configured steps at the
// HTTP level. The real automation engine is an external collaborator; its
// adapter surface is exercised here so browser suites produce the same
// event traffic a driver would.
func (r *Runner) navCheck(ctx context.Context, baseURL string, c *Check) (map[string]any, error) {
	browser := adapter.NewBrowser(r.session)

	for _, step := range c.Steps {
		switch step.Action {
		case "navigate", "verify":
			url := resolveURL(baseURL, step.Path)
			start := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("building request: %w", err)
			}
			resp, err := r.client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", step.Action, err)
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			_ = resp.Body.Close()

			if err := browser.PageLoaded(url, time.Since(start)); err != nil {
				return nil, err
			}
			if step.Action == "verify" && resp.StatusCode >= 400 {
				return map[string]any{"url": url, "status": resp.StatusCode},
					fmt.Errorf("verify %s: status %d", url, resp.StatusCode)
			}

		default:
			if err := browser.Action(step.Action, step.Element, step.Value); err != nil {
				return nil, err
			}
		}
	}

	return map[string]any{"steps": len(c.Steps)}, nil
}

func resolveURL(baseURL, target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if baseURL == "" {
		return target
	}
	return baseURL + "/" + strings.TrimLeft(target, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func hasSQLChecks(s *Suite) bool {
	for _, c := range s.Checks {
		if c.Kind == "sql" && c.Skip == "" {
			return true
		}
	}
	return false
}
