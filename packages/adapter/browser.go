package adapter

import (
	"time"

	"github.com/storefront-qa/testpulse/packages/telemetry"
)

// Browser translates browser-automation driver callbacks into telemetry
// events. The driver itself (page loads, element lookups, clicks) lives
// outside this subsystem; the adapter is its only contact with the engine.
type Browser struct {
	session *telemetry.Session

	current string
	started time.Time
}

// NewBrowser creates a browser adapter bound to a session.
func NewBrowser(session *telemetry.Session) *Browser {
	return &Browser{session: session}
}

// StartTest marks a browser test as running.
func (b *Browser) StartTest(name string) error {
	b.current = name
	b.started = time.Now()
	return b.session.Emit(telemetry.TestStart(name))
}

// Action traces one driver action, e.g. a click or a form fill.
func (b *Browser) Action(action, element, value string) error {
	var details map[string]any
	if element != "" || value != "" {
		details = map[string]any{}
		if element != "" {
			details["element"] = element
		}
		if value != "" {
			details["value"] = value
		}
	}
	return b.session.Emit(telemetry.ActionTrace("BROWSER", action, details))
}

// PageLoaded traces a completed page load and records its duration as a
// performance metric.
func (b *Browser) PageLoaded(url string, took time.Duration) error {
	if err := b.session.Emit(telemetry.ActionTrace("BROWSER", "Page loaded: "+url, map[string]any{
		"load_seconds": took.Seconds(),
	})); err != nil {
		return err
	}
	return b.session.Emit(telemetry.PerfMetric("Page Load Time", took.Seconds(), "seconds"))
}

// Screenshot traces a saved screenshot.
func (b *Browser) Screenshot(path, description string) error {
	details := map[string]any{"path": path}
	if description != "" {
		details["description"] = description
	}
	return b.session.Emit(telemetry.ActionTrace("BROWSER", "Screenshot saved", details))
}

// Pass ends the current test successfully.
func (b *Browser) Pass(details map[string]any) error {
	return b.session.Emit(telemetry.TestPass(b.current, time.Since(b.started), details))
}

// Fail ends the current test with an error.
func (b *Browser) Fail(errorMessage, stackTrace string) error {
	return b.session.Emit(telemetry.TestFail(b.current, errorMessage, stackTrace, time.Since(b.started), nil))
}

// Skip ends the current test as skipped.
func (b *Browser) Skip(reason string) error {
	return b.session.Emit(telemetry.TestSkip(b.current, reason))
}
