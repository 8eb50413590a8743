// Package telemetry is the test telemetry and reporting engine.
//
// It turns raw pass/fail/timing signals from heterogeneous test runners into
// durable, multi-channel log output. One Session owns four append-only file
// sinks (detailed, summary, errors, performance) plus an in-memory stats
// aggregator that is serialized to a JSON report when the session closes.
//
// Runner adapters translate their framework's native hooks into the common
// Event vocabulary and hand every event to the session's Router, which fans
// it out to the sinks and the aggregator. Writes are flushed line by line so
// external tailing tools see near-real-time output.
package telemetry
