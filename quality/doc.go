// Package quality provides adaptive quality management for the recording
// pipeline.
//
// This module implements automatic quality degradation based on frame
// latency, memory pressure, and thermal state to keep a dual-camera
// session real-time on a constrained device.
//
// Design Philosophy:
// - Use simple, proven threshold logic instead of predictive models
// - Degrade immediately when a threshold is breached, recover slowly
// - Keep the published state readable without locks on the frame path
// - Provide clear callbacks for application-level quality monitoring
//
// The governor walks a three-level state machine:
//
//	Normal -> Reduced -> Minimal -> (recovery) -> Normal
//
// A moderate breach of any threshold drops one level on the spot. A
// severe breach (double the latency budget, hard memory ceiling, or a
// critical thermal reading) drops straight to Minimal. Stepping back up
// requires a run of consecutive clean samples per level, so a pipeline
// hovering near a threshold settles low instead of oscillating.
package quality
