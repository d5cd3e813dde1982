package bufferpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/video"
)

var (
	// ErrExhausted indicates every buffer for the requested geometry is
	// already in flight. The caller should drop the frame rather than wait.
	ErrExhausted = errors.New("buffer pool exhausted")
)

// Config holds tunable parameters for the pool.
type Config struct {
	// PerKeyCap bounds how many buffers of one geometry and format may
	// exist at once, counting free and in-flight buffers together.
	// Producers asking for more receive ErrExhausted instead of growing
	// the heap.
	PerKeyCap int
}

// DefaultConfig returns a Config suitable for dual-camera capture with a
// composed output stream.
func DefaultConfig() *Config {
	return &Config{
		// Six buffers per geometry: double-buffered capture plus slack
		// for one frame waiting in the sync window and one being encoded.
		PerKeyCap: 6,
	}
}

type key struct {
	width  int
	height int
	format video.PixelFormat
}

// Pool recycles frame buffers keyed by geometry and pixel format.
//
// All methods are safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	cfg         Config
	free        map[key][]*video.Frame
	outstanding map[key]int

	// Lock-free statistics counters
	hits      uint64
	misses    uint64
	exhausted uint64
	releases  uint64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Hits        uint64 // Acquires served from a free list
	Misses      uint64 // Acquires that allocated a new buffer
	Exhausted   uint64 // Acquires rejected at the per-key cap
	Releases    uint64 // Buffers returned to the pool
	Outstanding int    // Buffers currently in flight across all keys
}

// New creates a buffer pool. A nil config uses DefaultConfig.
func New(cfg *Config) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PerKeyCap <= 0 {
		cfg.PerKeyCap = DefaultConfig().PerKeyCap
	}

	logrus.WithFields(logrus.Fields{
		"function":    "New",
		"per_key_cap": cfg.PerKeyCap,
	}).Info("Creating frame buffer pool")

	return &Pool{
		cfg:         *cfg,
		free:        make(map[key][]*video.Frame),
		outstanding: make(map[key]int),
	}
}

// Warm preallocates up to n free buffers for the given geometry so the
// first frames of a session do not pay allocation latency. Warming never
// exceeds the per-key cap.
func (p *Pool) Warm(width, height int, format video.PixelFormat, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{width, height, format}
	for len(p.free[k])+p.outstanding[k] < p.cfg.PerKeyCap && n > 0 {
		frame, err := video.NewFrame(width, height, format)
		if err != nil {
			return fmt.Errorf("warming %dx%d %s: %w", width, height, format, err)
		}
		p.free[k] = append(p.free[k], frame)
		n--
	}

	logrus.WithFields(logrus.Fields{
		"function": "Warm",
		"width":    width,
		"height":   height,
		"format":   format.String(),
		"free":     len(p.free[k]),
	}).Debug("Pool warmed for geometry")
	return nil
}

// Acquire returns a frame buffer of the given geometry, reusing a free
// buffer when one exists. When all buffers for the geometry are in
// flight it returns ErrExhausted and the caller must drop the frame.
//
// The returned frame's pixel data is whatever the previous user left in
// it; producers overwrite every plane.
func (p *Pool) Acquire(width, height int, format video.PixelFormat) (*video.Frame, error) {
	k := key{width, height, format}

	p.mu.Lock()
	if frames := p.free[k]; len(frames) > 0 {
		frame := frames[len(frames)-1]
		p.free[k] = frames[:len(frames)-1]
		p.outstanding[k]++
		p.mu.Unlock()

		atomic.AddUint64(&p.hits, 1)
		frame.PTS = 0
		frame.Source = 0
		return frame, nil
	}

	if p.outstanding[k] >= p.cfg.PerKeyCap {
		p.mu.Unlock()
		atomic.AddUint64(&p.exhausted, 1)
		logrus.WithFields(logrus.Fields{
			"function": "Acquire",
			"width":    width,
			"height":   height,
			"format":   format.String(),
			"cap":      p.cfg.PerKeyCap,
		}).Debug("Buffer pool exhausted for geometry")
		return nil, fmt.Errorf("%w: %dx%d %s", ErrExhausted, width, height, format)
	}
	p.outstanding[k]++
	p.mu.Unlock()

	// Allocation happens outside the lock; geometry validation lives in
	// video.NewFrame.
	frame, err := video.NewFrame(width, height, format)
	if err != nil {
		p.mu.Lock()
		p.outstanding[k]--
		p.mu.Unlock()
		return nil, err
	}

	atomic.AddUint64(&p.misses, 1)
	return frame, nil
}

// Release returns a frame to its free list. Frames released past the
// per-key cap, or frames the pool never issued, are discarded to the
// garbage collector with a warning.
func (p *Pool) Release(frame *video.Frame) {
	if frame == nil {
		return
	}
	k := key{frame.Width, frame.Height, frame.Format}

	p.mu.Lock()
	if p.outstanding[k] <= 0 {
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Release",
			"width":    frame.Width,
			"height":   frame.Height,
			"format":   frame.Format.String(),
		}).Warn("Release of frame with no outstanding acquire; discarding")
		return
	}
	p.outstanding[k]--
	if len(p.free[k])+p.outstanding[k] < p.cfg.PerKeyCap {
		p.free[k] = append(p.free[k], frame)
	}
	p.mu.Unlock()

	atomic.AddUint64(&p.releases, 1)
}

// Outstanding reports how many buffers are currently in flight across
// all geometries. A quiescent pipeline always reads zero.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, n := range p.outstanding {
		total += n
	}
	return total
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadUint64(&p.hits),
		Misses:      atomic.LoadUint64(&p.misses),
		Exhausted:   atomic.LoadUint64(&p.exhausted),
		Releases:    atomic.LoadUint64(&p.releases),
		Outstanding: p.Outstanding(),
	}
}
