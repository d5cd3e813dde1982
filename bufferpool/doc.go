// Package bufferpool provides fixed-geometry frame buffer recycling for
// the recording pipeline.
//
// Capturing two cameras at 30fps allocates multi-megabyte pixel buffers
// hundreds of times per second if done naively. The pool keeps a bounded
// free list per (width, height, format) key and hands buffers back and
// forth between capture, composition, and encoding without touching the
// allocator in steady state.
//
// The per-key cap bounds total buffers in existence, free and in-flight
// combined. When every buffer of a geometry is in flight the pool reports
// ErrExhausted instead of growing, which converts memory pressure into
// frame drops upstream. Release returns a buffer to its free list; every
// acquire must be matched by exactly one release on every code path.
//
// Usage:
//
//	pool := bufferpool.New(nil)
//	frame, err := pool.Acquire(1920, 1080, video.FormatI420)
//	if err != nil {
//	    // All buffers in flight; drop this frame.
//	}
//	defer pool.Release(frame)
package bufferpool
