package framesync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/video"
)

var (
	// ErrUnpairableSource indicates a frame whose source the coordinator
	// does not pair (anything other than the front or back camera).
	ErrUnpairableSource = errors.New("frame source cannot be paired")

	// ErrNilFrame indicates a nil frame was submitted.
	ErrNilFrame = errors.New("frame cannot be nil")
)

const (
	slotFront = 0
	slotBack  = 1

	// staleFactor times the sync window is how long a pending frame may
	// wait for a partner before the sweep drops it.
	staleFactor = 2
)

// Config holds pairing parameters.
type Config struct {
	// SyncWindow is the maximum capture-timestamp distance between a
	// front and a back frame that still counts as the same instant.
	// One frame interval at 30fps.
	SyncWindow time.Duration
}

// DefaultConfig returns pairing parameters for 30fps capture.
func DefaultConfig() *Config {
	return &Config{
		SyncWindow: 33 * time.Millisecond,
	}
}

// Pair is a front and a back frame captured within one sync window of
// each other. A pair is consumed exactly once by the compositor, after
// which both members return to the buffer pool.
type Pair struct {
	Front *video.Frame
	Back  *video.Frame

	// PTS is the pair's presentation timestamp, the midpoint of the two
	// capture timestamps.
	PTS time.Duration
}

// Coordinator matches frames from the two camera sources.
//
// The emit handler receives completed pairs and owns both members. It is
// called with the coordinator lock held so pairs reach the next stage in
// pairing order; it must hand off without blocking. The release handler
// returns dropped frames to their pool.
type Coordinator struct {
	mu      sync.Mutex
	cfg     Config
	pending [2]*video.Frame
	emit    func(Pair)
	release func(*video.Frame)
	closed  bool

	paired  uint64
	skipped uint64
}

// NewCoordinator creates a frame pairing coordinator. A nil config uses
// DefaultConfig. The emit handler must not block; the release handler
// receives every frame the coordinator drops.
func NewCoordinator(cfg *Config, emit func(Pair), release func(*video.Frame)) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = DefaultConfig().SyncWindow
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewCoordinator",
		"sync_window": cfg.SyncWindow,
	}).Info("Creating frame sync coordinator")

	return &Coordinator{
		cfg:     *cfg,
		emit:    emit,
		release: release,
	}
}

// Submit offers a frame for pairing. Ownership transfers to the
// coordinator on a nil return: the frame is either emitted in a pair,
// held pending, or dropped through the release handler. On error the
// caller retains ownership.
func (c *Coordinator) Submit(frame *video.Frame) error {
	if frame == nil {
		return ErrNilFrame
	}

	var slot int
	switch frame.Source {
	case video.SourceFront:
		slot = slotFront
	case video.SourceBack:
		slot = slotBack
	default:
		return fmt.Errorf("%w: %s", ErrUnpairableSource, frame.Source)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Frames racing a session shutdown go straight back to the pool.
	if c.closed {
		if c.release != nil {
			c.release(frame)
		}
		return nil
	}

	// Every arrival advances the capture clock for staleness purposes.
	c.sweepLocked(frame.PTS)

	other := 1 - slot
	if partner := c.pending[other]; partner != nil {
		delta := frame.PTS - partner.PTS
		if delta < 0 {
			delta = -delta
		}
		if delta <= c.cfg.SyncWindow {
			c.pending[other] = nil
			// A same-source frame still pending is older than this one
			// and its only possible partner is being consumed now.
			if stale := c.pending[slot]; stale != nil {
				c.pending[slot] = nil
				c.dropLocked(stale, "superseded by pairing")
			}
			c.emitLocked(frame, partner, slot)
			return nil
		}
	}

	// Single slot per source: the newest frame wins.
	if old := c.pending[slot]; old != nil {
		c.pending[slot] = nil
		c.dropLocked(old, "overwritten by newer frame")
	}
	c.pending[slot] = frame
	return nil
}

// SweepStale drops pending frames that have aged past twice the sync
// window at the given capture-clock reading. Submissions sweep
// implicitly; callers run this on a timer to cover stalls where one
// source stops delivering entirely. Returns the number of frames dropped.
func (c *Coordinator) SweepStale(now time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *Coordinator) sweepLocked(now time.Duration) int {
	dropped := 0
	for slot, pending := range c.pending {
		if pending == nil {
			continue
		}
		if now-pending.PTS >= staleFactor*c.cfg.SyncWindow {
			c.pending[slot] = nil
			c.dropLocked(pending, "no partner within stale window")
			dropped++
		}
	}
	return dropped
}

// Close flushes pending frames and makes every later Submit release
// its frame immediately instead of pairing it. Called when a session
// stops so nothing can park in a slot after the drain.
func (c *Coordinator) Close() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.flushLocked()
}

// Flush releases any pending frames without counting them as skipped.
// Called when a session stops; frames caught mid-wait are cleanup, not
// sync failures. Returns the number of frames flushed.
func (c *Coordinator) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Coordinator) flushLocked() int {
	flushed := 0
	for slot, pending := range c.pending {
		if pending == nil {
			continue
		}
		c.pending[slot] = nil
		if c.release != nil {
			c.release(pending)
		}
		flushed++
	}
	if flushed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Flush",
			"flushed":  flushed,
		}).Debug("Released pending frames on flush")
	}
	return flushed
}

// Paired reports how many pairs have been emitted.
func (c *Coordinator) Paired() uint64 {
	return atomic.LoadUint64(&c.paired)
}

// Skipped reports how many frames were dropped unpaired (overwritten,
// superseded, or stale).
func (c *Coordinator) Skipped() uint64 {
	return atomic.LoadUint64(&c.skipped)
}

func (c *Coordinator) emitLocked(frame, partner *video.Frame, slot int) {
	pair := Pair{}
	if slot == slotFront {
		pair.Front, pair.Back = frame, partner
	} else {
		pair.Front, pair.Back = partner, frame
	}
	pair.PTS = (pair.Front.PTS + pair.Back.PTS) / 2

	atomic.AddUint64(&c.paired, 1)
	logrus.WithFields(logrus.Fields{
		"function":  "emitLocked",
		"front_pts": pair.Front.PTS,
		"back_pts":  pair.Back.PTS,
		"pair_pts":  pair.PTS,
	}).Debug("Emitting synchronized pair")

	if c.emit != nil {
		c.emit(pair)
	}
}

func (c *Coordinator) dropLocked(frame *video.Frame, reason string) {
	atomic.AddUint64(&c.skipped, 1)
	logrus.WithFields(logrus.Fields{
		"function": "dropLocked",
		"source":   frame.Source.String(),
		"pts":      frame.PTS,
		"reason":   reason,
	}).Debug("Dropping unpaired frame")

	if c.release != nil {
		c.release(frame)
	}
}
