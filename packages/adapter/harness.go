package adapter

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/storefront-qa/testpulse/packages/telemetry"
)

// Harness translates the hooks of an alternate assertion framework into
// telemetry events. It also understands the framework's textual output, so
// a run captured from a subprocess can be replayed into the engine.
type Harness struct {
	session *telemetry.Session

	started map[string]time.Time
}

// NewHarness creates a harness adapter bound to a session.
func NewHarness(session *telemetry.Session) *Harness {
	return &Harness{
		session: session,
		started: make(map[string]time.Time),
	}
}

// FixtureSetup traces a fixture being set up.
func (h *Harness) FixtureSetup(name string) error {
	return h.session.Emit(telemetry.ActionTrace("SETUP", "Fixture setup: "+name, nil))
}

// FixtureTeardown traces a fixture being torn down.
func (h *Harness) FixtureTeardown(name string) error {
	return h.session.Emit(telemetry.ActionTrace("TEARDOWN", "Fixture teardown: "+name, nil))
}

// StartTest marks a test as running.
func (h *Harness) StartTest(name string) error {
	h.started[name] = time.Now()
	return h.session.Emit(telemetry.TestStart(name))
}

// Pass ends a test successfully.
func (h *Harness) Pass(name string, details map[string]any) error {
	return h.session.Emit(telemetry.TestPass(name, h.elapsed(name), details))
}

// Fail ends a test with an error.
func (h *Harness) Fail(name, errorMessage, stackTrace string) error {
	return h.session.Emit(telemetry.TestFail(name, errorMessage, stackTrace, h.elapsed(name), nil))
}

// Skip ends a test as skipped.
func (h *Harness) Skip(name, reason string) error {
	return h.session.Emit(telemetry.TestSkip(name, reason))
}

func (h *Harness) elapsed(name string) time.Duration {
	start, ok := h.started[name]
	if !ok {
		return 0
	}
	delete(h.started, name)
	return time.Since(start)
}

// ParseOutput reads framework output line by line and emits a terminal
// event for every result marker it finds. Lines look like
//
//	shop/tests.py::test_cart_total PASSED   [ 40%]
//	shop/tests.py::test_checkout FAILED - boom
//	shop/tests.py::test_wishlist SKIPPED (not implemented)
//
// It returns the number of terminal events emitted.
func (h *Harness) ParseOutput(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	emitted := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.Contains(line, " PASSED"):
			name := testName(line, " PASSED")
			if err := h.Pass(name, nil); err != nil {
				return emitted, err
			}
			emitted++

		case strings.Contains(line, " FAILED"):
			name := testName(line, " FAILED")
			msg := failureMessage(line)
			if err := h.Fail(name, msg, ""); err != nil {
				return emitted, err
			}
			emitted++

		case strings.Contains(line, " SKIPPED"):
			name := testName(line, " SKIPPED")
			if err := h.Skip(name, skipReason(line)); err != nil {
				return emitted, err
			}
			emitted++
		}
	}

	return emitted, scanner.Err()
}

func testName(line, marker string) string {
	name := line[:strings.Index(line, marker)]
	return strings.TrimSpace(name)
}

func failureMessage(line string) string {
	if i := strings.Index(line, " - "); i >= 0 {
		return strings.TrimSpace(line[i+3:])
	}
	return "test failed"
}

func skipReason(line string) string {
	open := strings.Index(line, "(")
	end := strings.LastIndex(line, ")")
	if open >= 0 && end > open {
		return line[open+1 : end]
	}
	return ""
}
