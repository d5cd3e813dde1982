package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/bufferpool"
	"github.com/opd-ai/dualcam/compositor"
	"github.com/opd-ai/dualcam/framesync"
	"github.com/opd-ai/dualcam/mux"
	"github.com/opd-ai/dualcam/quality"
	"github.com/opd-ai/dualcam/video"
)

// State is the controller's lifecycle position.
type State uint8

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateStarting means a session is being wired up.
	StateStarting
	// StateRunning means frames are flowing.
	StateRunning
	// StateStopping means the session is draining and finalizing.
	StateStopping
	// StateError means the last session aborted; Reset returns to Idle.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// WriterFactory builds the writer for one output. The pipeline calls
// it during Starting with the destination, a role name for logs and
// results, and whether the output carries the audio track. The codec
// and container choice lives entirely in the factory, which is how the
// container format stays a configuration parameter.
type WriterFactory func(dest mux.Destination, role string, withAudio bool) (*mux.Writer, error)

// RawWriterFactory builds writers over the raw packet-log container
// with passthrough encoders. This is the default: lossless, dependency
// free, and what the per-camera outputs want.
func RawWriterFactory(dest mux.Destination, role string, withAudio bool) (*mux.Writer, error) {
	sink, err := dest.Open()
	if err != nil {
		return nil, err
	}
	var aenc mux.AudioEncoder
	if withAudio {
		aenc = mux.NewRawPCMEncoder()
	}
	return mux.NewWriter(role, mux.NewRawContainer(sink), mux.NewRawVideoEncoder(), aenc)
}

// Config holds pipeline-wide parameters.
type Config struct {
	// Preset picks the composed output geometry and frame rate.
	Preset Preset

	// SyncWindow is the pairing tolerance between the cameras. Zero
	// uses one frame interval.
	SyncWindow time.Duration

	// Workers is the size of the composition worker pool. Also the
	// pair queue depth: one pair may wait per worker, no more.
	Workers int

	// WriterFactory builds the session writers. Nil uses
	// RawWriterFactory.
	WriterFactory WriterFactory

	// Quality overrides the governor thresholds. Nil uses defaults
	// tuned to the preset's frame interval.
	Quality *quality.Config

	// Pool overrides the buffer pool parameters. Nil uses defaults.
	Pool *bufferpool.Config
}

// DefaultConfig returns pipeline parameters for 1080p30 recording.
func DefaultConfig() *Config {
	return &Config{
		Preset: Preset1080p,

		// Two workers: one compose in flight while the next pair is
		// being paired, matching the compositor's render slots.
		Workers: 2,
	}
}

// Controller owns the recording pipeline lifecycle and wiring.
//
// All mutable lifecycle state is guarded by one mutex; the hot path
// (OnFrame, OnAudio, the workers) touches only the components, which
// carry their own minimal synchronization, plus one accepting flag.
type Controller struct {
	mu  sync.Mutex
	cfg Config

	state State

	pool     *bufferpool.Pool
	comp     *compositor.Compositor
	governor *quality.Governor
	bus      *Bus

	layout compositor.Layout

	// Per-session wiring, rebuilt by StartRecording. The coordinator
	// and writers survive past session stop so late frames racing
	// shutdown land on closed components instead of nil fields.
	session       *Session
	activeSession atomic.Pointer[Session]
	coordinator   *framesync.Coordinator
	pairs         chan framesync.Pair
	workers       sync.WaitGroup
	cancel        context.CancelFunc

	frontWriter    *mux.Writer
	backWriter     *mux.Writer
	composedWriter *mux.Writer

	accepting atomic.Bool
	skipped   atomic.Uint64
	parity    atomic.Uint64

	// Capture clock tracking for the stale sweeper: the highest PTS
	// seen and the wall time it arrived, so the sweeper can extrapolate
	// the capture clock while both cameras are stalled.
	lastSubmitPTS  atomic.Int64
	lastSubmitWall atomic.Int64

	paceMu      sync.Mutex
	hasComposed bool
	lastPTS     time.Duration

	lastResult *RecordingResult
}

// NewController creates an idle pipeline controller. A nil config uses
// DefaultConfig.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	resolved := *cfg
	if resolved.Workers <= 0 {
		resolved.Workers = DefaultConfig().Workers
	}
	if resolved.SyncWindow <= 0 {
		resolved.SyncWindow = resolved.Preset.FrameInterval()
	}
	if resolved.WriterFactory == nil {
		resolved.WriterFactory = RawWriterFactory
	}

	width, height := resolved.Preset.Geometry()
	pool := bufferpool.New(resolved.Pool)
	comp, err := compositor.New(&compositor.Config{
		OutputWidth:   width,
		OutputHeight:  height,
		FrameInterval: resolved.Preset.FrameInterval(),
		RenderSlots:   resolved.Workers,
	}, pool)
	if err != nil {
		return nil, fmt.Errorf("creating compositor: %w", err)
	}

	qualityCfg := resolved.Quality
	if qualityCfg == nil {
		qualityCfg = quality.DefaultConfig()
		qualityCfg.FrameInterval = resolved.Preset.FrameInterval()
		qualityCfg.NormalMaxRate = resolved.Preset.FrameRate()
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewController",
		"preset":      resolved.Preset.String(),
		"sync_window": resolved.SyncWindow,
		"workers":     resolved.Workers,
	}).Info("Creating pipeline controller")

	c := &Controller{
		cfg:      resolved,
		state:    StateIdle,
		pool:     pool,
		comp:     comp,
		governor: quality.NewGovernor(qualityCfg),
		bus:      NewBus(),
		layout:   compositor.SideBySide(),
	}
	c.governor.OnStateChange(func(st quality.State) {
		c.bus.Publish(Event{Kind: EventQualityChanged, Quality: st})
	})
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the controller's event bus.
func (c *Controller) Events() *Bus {
	return c.bus
}

// Pool returns the shared buffer pool. Capture collaborators acquire
// their frames here so every buffer in the pipeline has one owner and
// one home.
func (c *Controller) Pool() *bufferpool.Pool {
	return c.pool
}

// Layout returns the layout the next session will compose with.
func (c *Controller) Layout() compositor.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout
}

// SetLayout changes the composition layout. Valid only while idle:
// layouts never change mid-frame, only between sessions.
func (c *Controller) SetLayout(layout compositor.Layout) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: cannot change layout while %s", ErrInvalidState, c.state)
	}
	width, height := c.cfg.Preset.Geometry()
	if err := layout.Validate(width, height); err != nil {
		return err
	}
	c.layout = layout

	logrus.WithFields(logrus.Fields{
		"function": "SetLayout",
		"layout":   layout.String(),
	}).Info("Composition layout changed")
	return nil
}

// StartRecording brings up a session: warms the pool, resets the
// coordinator and governor, opens all three writers, and starts the
// composition workers. The pipeline reaches Running only when every
// requested writer reported ready; any open failure finalizes the
// partially opened outputs, publishes one failed event with the
// per-destination detail, and leaves the controller in StateError.
func (c *Controller) StartRecording(layout compositor.Layout, dests Destinations) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, c.state)
	}
	if dests.Composed == nil {
		return ErrNoComposedDestination
	}
	width, height := c.cfg.Preset.Geometry()
	if err := layout.Validate(width, height); err != nil {
		return err
	}

	c.state = StateStarting
	c.layout = layout
	session := newSession(layout, dests)

	logrus.WithFields(logrus.Fields{
		"function": "StartRecording",
		"session":  session.ID.String(),
		"layout":   layout.String(),
	}).Info("Starting recording session")

	// Warm the composed geometry so the first frames skip allocation.
	if err := c.pool.Warm(width, height, video.FormatI420, 3); err != nil {
		c.state = StateIdle
		return fmt.Errorf("warming buffer pool: %w", err)
	}

	// Clear the previous session's writers first so a failure below
	// cannot report a stale result for an output this session never
	// touched.
	c.frontWriter, c.backWriter, c.composedWriter = nil, nil, nil

	var err error
	if c.composedWriter, err = c.cfg.WriterFactory(dests.Composed, "composed", true); err != nil {
		return c.failStartLocked(session, "composed", err)
	}
	if dests.Front != nil {
		if c.frontWriter, err = c.cfg.WriterFactory(dests.Front, "front", false); err != nil {
			return c.failStartLocked(session, "front", err)
		}
	}
	if dests.Back != nil {
		if c.backWriter, err = c.cfg.WriterFactory(dests.Back, "back", false); err != nil {
			return c.failStartLocked(session, "back", err)
		}
	}

	for role, writer := range map[string]*mux.Writer{
		"composed": c.composedWriter,
		"front":    c.frontWriter,
		"back":     c.backWriter,
	} {
		if writer == nil {
			continue
		}
		if err := writer.Start(); err != nil {
			return c.failStartLocked(session, role, err)
		}
	}

	c.coordinator = framesync.NewCoordinator(
		&framesync.Config{SyncWindow: c.cfg.SyncWindow},
		c.handlePair,
		c.pool.Release,
	)
	c.pairs = make(chan framesync.Pair, c.cfg.Workers)
	c.skipped.Store(0)
	c.parity.Store(0)
	c.lastSubmitPTS.Store(0)
	c.lastSubmitWall.Store(0)
	c.paceMu.Lock()
	c.hasComposed = false
	c.lastPTS = 0
	c.paceMu.Unlock()

	c.governor.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := c.governor.Start(ctx); err != nil {
		return c.failStartLocked(session, "composed", err)
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.workers.Add(1)
		go c.composeWorker(ctx)
	}
	c.workers.Add(1)
	go c.sweepLoop(ctx, c.coordinator, c.cfg.SyncWindow)

	session.StartedAt = time.Now()
	c.session = session
	c.activeSession.Store(session)
	c.state = StateRunning
	c.accepting.Store(true)

	c.bus.Publish(Event{Kind: EventStarted, Session: session.ID})
	return nil
}

// failStartLocked aborts a half-built session: finalizes whatever
// writers already exist, publishes the failure with per-destination
// detail, and parks the controller in StateError.
func (c *Controller) failStartLocked(session *Session, role string, cause error) error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.governor.Stop()

	result := RecordingResult{SessionID: session.ID}
	result.Front = finalizeWriter(c.frontWriter, "front", session.Destinations.Front != nil)
	result.Back = finalizeWriter(c.backWriter, "back", session.Destinations.Back != nil)
	result.Composed = finalizeWriter(c.composedWriter, "composed", true)
	if role == "composed" && result.Composed.Err == nil {
		result.Composed = mux.Result{Name: "composed", Status: mux.StatusFailed, Err: cause}
	}

	c.state = StateError
	c.lastResult = &result

	reason := fmt.Sprintf("opening %s output: %v", role, cause)
	logrus.WithFields(logrus.Fields{
		"function": "failStartLocked",
		"session":  session.ID.String(),
		"role":     role,
		"error":    cause.Error(),
	}).Error("Recording session failed to start")

	c.bus.Publish(Event{
		Kind:    EventFailed,
		Session: session.ID,
		Reason:  reason,
		Result:  &result,
	})
	return fmt.Errorf("%w: %s", ErrSessionFailed, reason)
}

// finalizeWriter stops a writer if it exists and reports its result.
// Requested outputs that never got a writer report the abort; outputs
// that were never requested report clean.
func finalizeWriter(writer *mux.Writer, role string, requested bool) mux.Result {
	if writer != nil {
		return writer.Stop()
	}
	if requested {
		return mux.Result{Name: role, Status: mux.StatusFailed, Err: fmt.Errorf("session aborted before %s output opened", role)}
	}
	return mux.Result{Name: role, Status: mux.StatusOK}
}

// OnFrame accepts one camera frame from a capture collaborator. The
// pipeline takes ownership: the frame is appended to its passthrough
// output, then submitted for pairing, and eventually returns to the
// pool on every path. Frames arriving while not running are released
// immediately.
func (c *Controller) OnFrame(frame *video.Frame) {
	if frame == nil {
		return
	}
	if !c.accepting.Load() {
		c.pool.Release(frame)
		return
	}

	if pts := int64(frame.PTS); pts > c.lastSubmitPTS.Load() {
		c.lastSubmitPTS.Store(pts)
	}
	c.lastSubmitWall.Store(time.Now().UnixNano())

	switch frame.Source {
	case video.SourceFront:
		if c.frontWriter != nil {
			c.frontWriter.AppendVideo(frame, frame.PTS)
		}
	case video.SourceBack:
		if c.backWriter != nil {
			c.backWriter.AppendVideo(frame, frame.PTS)
		}
	default:
		c.pool.Release(frame)
		return
	}

	if err := c.coordinator.Submit(frame); err != nil {
		c.pool.Release(frame)
	}
}

// OnAudio accepts one PCM batch from the audio collaborator, routed
// straight to the composed writer and rebased on its anchor.
func (c *Controller) OnAudio(pcm []int16, pts time.Duration) {
	if !c.accepting.Load() {
		return
	}
	c.composedWriter.AppendAudio(pcm, pts)
}

// handlePair moves an emitted pair onto the worker queue without
// blocking the submitting producer. A full queue drops the pair.
func (c *Controller) handlePair(pair framesync.Pair) {
	select {
	case c.pairs <- pair:
	default:
		c.pool.Release(pair.Front)
		c.pool.Release(pair.Back)
		c.noteSkipped(2)
	}
}

// composeWorker consumes pairs until the session context is canceled.
func (c *Controller) composeWorker(ctx context.Context) {
	defer c.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pair := <-c.pairs:
			c.processPair(pair)
		}
	}
}

// sweepLoop periodically drops pairing slots that have gone stale,
// covering stalls where one or both sources stop delivering entirely
// and the submit-path staleness check never runs again. The capture
// clock is extrapolated from the last submitted PTS by wall time.
func (c *Controller) sweepLoop(ctx context.Context, coord *framesync.Coordinator, interval time.Duration) {
	defer c.workers.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wall := c.lastSubmitWall.Load()
			if wall == 0 {
				continue
			}
			now := time.Duration(c.lastSubmitPTS.Load()) + time.Since(time.Unix(0, wall))
			if coord.SweepStale(now) > 0 {
				c.noteSkipped(0)
			}
		}
	}
}

// processPair runs quality policy, composition, and the composed
// append for one pair. Both pair members return to the pool here no
// matter what happens downstream.
func (c *Controller) processPair(pair framesync.Pair) {
	defer c.pool.Release(pair.Front)
	defer c.pool.Release(pair.Back)

	state := c.governor.State()

	if state.DropPolicy == quality.DropAlternate && c.parity.Add(1)%2 == 0 {
		c.noteSkipped(1)
		return
	}
	if !c.admitForRate(pair.PTS, state.MaxFrameRate) {
		c.noteSkipped(1)
		return
	}

	start := time.Now()
	frame, err := c.comp.Compose(pair, c.layout, state)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "processPair",
			"pair_pts": pair.PTS,
			"error":    err.Error(),
		}).Error("Composition failed")
		c.noteSkipped(1)
		return
	}
	if frame == nil {
		c.noteSkipped(1)
		return
	}

	if !c.composedWriter.AppendVideo(frame, frame.PTS) {
		c.noteSkipped(1)
	}
	c.pool.Release(frame)
	c.governor.ObserveLatency(time.Since(start))
}

// admitForRate enforces the governor's frame rate cap by pair
// timestamp spacing. The threshold sits at 90% of the nominal interval
// so capture jitter at exactly the target rate is not punished.
func (c *Controller) admitForRate(pts time.Duration, maxRate int) bool {
	if maxRate <= 0 {
		return true
	}
	minGap := time.Second / time.Duration(maxRate) * 9 / 10

	c.paceMu.Lock()
	defer c.paceMu.Unlock()
	if c.hasComposed && pts-c.lastPTS < minGap {
		return false
	}
	c.hasComposed = true
	c.lastPTS = pts
	return true
}

// noteSkipped accumulates dropped frames and publishes the session's
// cumulative count.
func (c *Controller) noteSkipped(n uint64) {
	total := c.skipped.Add(n)
	if coord := c.coordinator; coord != nil {
		total += coord.Skipped()
	}
	var sessionID uuid.UUID
	if s := c.activeSession.Load(); s != nil {
		sessionID = s.ID
	}
	c.bus.Publish(Event{Kind: EventFrameSkipped, Session: sessionID, SkippedCount: total})
}

// StopRecording tears the session down: halts submission, drains
// in-flight pairs, stops every writer, and aggregates their results.
// Safe to call from any goroutine at any time while running; calling
// it again after the session ended returns the same result.
func (c *Controller) StopRecording() (RecordingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
	case StateIdle, StateError:
		if c.lastResult != nil {
			return *c.lastResult, nil
		}
		return RecordingResult{}, ErrNotRecording
	default:
		return RecordingResult{}, fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, c.state)
	}

	c.state = StateStopping
	c.accepting.Store(false)
	session := c.session

	logrus.WithFields(logrus.Fields{
		"function": "StopRecording",
		"session":  session.ID.String(),
	}).Info("Stopping recording session")

	// Pending unpaired frames are cleanup, not sync failures. Closing
	// also makes any frame racing the shutdown release immediately
	// instead of parking in a pairing slot forever.
	c.coordinator.Close()

	// Workers finish their current pair, then exit; anything still
	// queued is drained back to the pool.
	c.cancel()
	c.cancel = nil
	c.workers.Wait()
	c.drainPairs()

	c.governor.Stop()

	result := RecordingResult{
		SessionID: session.ID,
		Front:     finalizeWriter(c.frontWriter, "front", session.Destinations.Front != nil),
		Back:      finalizeWriter(c.backWriter, "back", session.Destinations.Back != nil),
		Composed:  finalizeWriter(c.composedWriter, "composed", true),
		Duration:  time.Since(session.StartedAt),
	}

	c.session = nil
	c.lastResult = &result
	c.state = StateIdle

	logrus.WithFields(logrus.Fields{
		"function": "StopRecording",
		"session":  session.ID.String(),
		"result":   result.String(),
		"skipped":  c.skipped.Load(),
	}).Info("Recording session finished")

	c.bus.Publish(Event{Kind: EventFinished, Session: session.ID, Result: &result})
	return result, nil
}

func (c *Controller) drainPairs() {
	for {
		select {
		case pair := <-c.pairs:
			c.pool.Release(pair.Front)
			c.pool.Release(pair.Back)
		default:
			return
		}
	}
}

// Reset clears StateError back to Idle so a new session can start.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateError {
		c.state = StateIdle
	}
}

// Close releases the controller. An in-flight session is stopped
// first; its result is discarded.
func (c *Controller) Close() error {
	if c.State() == StateRunning {
		if _, err := c.StopRecording(); err != nil {
			return err
		}
	}
	c.bus.Close()
	return nil
}

// Skipped reports the session's cumulative dropped-frame count,
// including pairing drops.
func (c *Controller) Skipped() uint64 {
	total := c.skipped.Load()
	if coord := c.coordinator; coord != nil {
		total += coord.Skipped()
	}
	return total
}
