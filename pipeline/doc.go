// Package pipeline wires the recording components into one lifecycle.
//
// The Controller owns the state machine Idle -> Starting -> Running ->
// Stopping -> Idle, with Error reachable from any state. Starting warms
// the buffer pool, resets the frame sync coordinator, and opens the
// three output writers; the pipeline only runs once all of them report
// ready. Stopping halts camera submission, drains in-flight pairs, and
// aggregates the writers' individual results into one RecordingResult
// that reports each destination separately, so two good outputs are
// never hidden behind one failed one.
//
// While running, camera frames fan out to their passthrough writer and
// into the coordinator; synchronized pairs flow through a bounded
// worker pool to the compositor and the composed writer. Producers
// never block: a full worker queue, a missed render deadline, or a
// not-ready encoder all resolve by dropping the frame and counting it.
// Audio goes straight to the composed writer.
//
// Everything observable leaves through the event Bus: session start
// and finish, quality level changes, skipped-frame counts, and fatal
// failures. Subscribers get bounded buffers with drop-oldest delivery,
// so a slow listener can never stall the pipeline.
package pipeline
