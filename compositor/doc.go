// Package compositor renders synchronized camera pairs onto a single
// composed frame.
//
// Composition is software 4:2:0 work: each camera image is normalized to
// I420, scaled into its layout cell with aspect preserved, and blitted
// onto a black canvas in a fixed order (background, then the front
// camera, then the back camera). The fixed order makes output
// deterministic for identical inputs and settles which image wins where
// layouts overlap: the back camera is always on top.
//
// Real-time behavior comes from two bounds. A render slot semaphore
// models the depth of the underlying render queue; a compose that cannot
// claim a slot within one frame interval is dropped, not queued. And the
// composed output is drawn into a frame from the shared buffer pool, so
// when the pool's output budget is spent the compose drops instead of
// allocating.
//
// Scratch surfaces for normalization and scaling come from a bounded LRU
// cache keyed by geometry, keeping steady-state composition allocation
// free.
package compositor
