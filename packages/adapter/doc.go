// Package adapter contains the thin translators between a test framework's
// native hooks and the common telemetry event vocabulary. Adapters hold no
// state beyond the test currently in flight; all durable state lives in the
// session they emit into.
package adapter
