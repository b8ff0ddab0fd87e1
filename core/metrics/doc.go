// Package metrics defines the events emitted by a scheduling run and the sink
// interfaces that record them. Sinks are optional per event kind: a sink only
// needs RecordJob, and MultiSink forwards attempt and price window events to
// the sinks that also implement AttemptRecorder or PriceWindowRecorder.
// Concrete sinks live in infra/metrics and register themselves by type name.
package metrics
