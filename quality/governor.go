package quality

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyRunning indicates Start was called on a running governor.
	ErrAlreadyRunning = errors.New("governor already running")
)

// Level represents the governor's current degradation level.
type Level int

const (
	// LevelNormal runs full render scale at the target frame rate.
	LevelNormal Level = iota
	// LevelReduced halves the render scale and trims the frame rate cap.
	LevelReduced
	// LevelMinimal additionally sheds every other composed frame.
	LevelMinimal
)

// String returns a human-readable level description.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelReduced:
		return "reduced"
	case LevelMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// DropPolicy tells the composition stage which frames to shed.
type DropPolicy int

const (
	// DropNone composes every synchronized pair.
	DropNone DropPolicy = iota
	// DropAlternate composes every other pair and sheds the rest.
	DropAlternate
)

// String returns a human-readable drop policy description.
func (p DropPolicy) String() string {
	switch p {
	case DropNone:
		return "none"
	case DropAlternate:
		return "alternate"
	default:
		return "unknown"
	}
}

// ThermalState mirrors the platform's thermal envelope assessment.
type ThermalState int

const (
	// ThermalNominal indicates normal operating temperature.
	ThermalNominal ThermalState = iota
	// ThermalFair indicates slightly elevated temperature.
	ThermalFair
	// ThermalSerious indicates the device is hot enough to throttle.
	ThermalSerious
	// ThermalCritical indicates imminent forced shutdown territory.
	ThermalCritical
)

// String returns a human-readable thermal state description.
func (t ThermalState) String() string {
	switch t {
	case ThermalNominal:
		return "nominal"
	case ThermalFair:
		return "fair"
	case ThermalSerious:
		return "serious"
	case ThermalCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ThermalProvider reports the platform thermal state. Platform
// integrations supply a real one; the default always reports nominal.
type ThermalProvider interface {
	ThermalState() ThermalState
}

type nominalThermal struct{}

func (nominalThermal) ThermalState() ThermalState { return ThermalNominal }

// State is the published quality snapshot. The compositor and writers
// read it on every frame, so it is reached through an atomic pointer and
// never mutated after publication.
type State struct {
	Level        Level
	Scale        float64 // Render scale applied to the composed output
	MaxFrameRate int     // Upper bound on composed frames per second
	DropPolicy   DropPolicy
}

// Signals is one sample of the inputs the governor weighs.
type Signals struct {
	AvgFrameLatency time.Duration // Smoothed compose-and-append latency
	HeapInUse       uint64        // Live heap bytes
	Thermal         ThermalState
}

// Config defines governor thresholds and pacing.
//
// These values are tuned for 30fps dual-camera capture on mobile-class
// hardware. Conservative defaults prioritize keeping the session alive
// over output fidelity.
type Config struct {
	// Latency thresholds
	FrameInterval       time.Duration // Per-frame latency budget; above this is a breach (default: 33ms)
	SevereLatencyFactor float64       // Multiple of FrameInterval treated as a severe breach (default: 2.0)

	// Memory thresholds
	MemoryThreshold     uint64 // Live heap counting as pressure (default: 512 MB)
	MemoryHardThreshold uint64 // Live heap treated as a severe breach (default: 768 MB)

	// Hysteresis controls
	UpgradeSamples  int // Consecutive clean samples per one-level upgrade (default: 5)
	EscalateSamples int // Consecutive moderate breaches before a further downgrade (default: 8)

	// Sampling interval for the background loop
	SampleInterval time.Duration // How often signals are gathered (default: 500ms)

	// Frame rate caps per level
	NormalMaxRate  int // Target rate with no degradation (default: 30)
	ReducedMaxRate int // Cap under reduced quality (default: 24)
	MinimalMaxRate int // Cap under minimal quality (default: 15)
}

// DefaultConfig returns configuration with conservative defaults.
//
// These settings follow the rule of reacting quickly to degradation and
// recovering slowly, which keeps quality stable on devices that hover
// near their limits.
func DefaultConfig() *Config {
	return &Config{
		// One frame interval at 30fps; a composition pipeline that
		// averages slower than its frame budget is falling behind.
		FrameInterval:       33 * time.Millisecond,
		SevereLatencyFactor: 2.0,

		// Heap thresholds sized for devices with 2-4 GB of RAM where
		// the OS reclaims aggressive processes well before 1 GB.
		MemoryThreshold:     512 << 20,
		MemoryHardThreshold: 768 << 20,

		// Five clean samples (2.5s at the default interval) before each
		// upgrade step; eight sustained breaches before escalating a
		// downgrade past the first level.
		UpgradeSamples:  5,
		EscalateSamples: 8,

		SampleInterval: 500 * time.Millisecond,

		NormalMaxRate:  30,
		ReducedMaxRate: 24,
		MinimalMaxRate: 15,
	}
}

type breachSeverity int

const (
	breachNone breachSeverity = iota
	breachModerate
	breachSevere
)

// Governor owns the quality degradation state machine.
//
// Degradation decisions run on periodic samples, either from the
// background loop started with Start or from direct Sample calls in
// tests. The resulting State is published atomically for lock-free
// reads on the frame path.
type Governor struct {
	mu  sync.Mutex
	cfg Config

	level        Level
	cleanStreak  int
	breachStreak int

	state atomic.Pointer[State]

	onChange func(State)
	thermal  ThermalProvider

	// Latency EMA is guarded separately so ObserveLatency never contends
	// with a sample in progress.
	latencyMu  sync.Mutex
	avgLatency time.Duration
	hasLatency bool

	timeProvider TimeProvider

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewGovernor creates a quality governor starting at LevelNormal.
//
// Parameters:
//   - cfg: Governor thresholds (use DefaultConfig(), nil falls back to it)
//
// Returns:
//   - *Governor: The new governor instance
func NewGovernor(cfg *Config) *Governor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	resolved := *cfg
	applyConfigDefaults(&resolved)

	logrus.WithFields(logrus.Fields{
		"function":         "NewGovernor",
		"frame_interval":   resolved.FrameInterval,
		"memory_threshold": resolved.MemoryThreshold,
		"upgrade_samples":  resolved.UpgradeSamples,
		"sample_interval":  resolved.SampleInterval,
	}).Info("Creating quality governor")

	g := &Governor{
		cfg:     resolved,
		level:   LevelNormal,
		thermal: nominalThermal{},
	}
	initial := g.stateFor(LevelNormal)
	g.state.Store(&initial)
	return g
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.SevereLatencyFactor <= 1.0 {
		cfg.SevereLatencyFactor = def.SevereLatencyFactor
	}
	if cfg.MemoryThreshold == 0 {
		cfg.MemoryThreshold = def.MemoryThreshold
	}
	if cfg.MemoryHardThreshold <= cfg.MemoryThreshold {
		cfg.MemoryHardThreshold = cfg.MemoryThreshold + (def.MemoryHardThreshold - def.MemoryThreshold)
	}
	if cfg.UpgradeSamples <= 0 {
		cfg.UpgradeSamples = def.UpgradeSamples
	}
	if cfg.EscalateSamples <= 0 {
		cfg.EscalateSamples = def.EscalateSamples
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.NormalMaxRate <= 0 {
		cfg.NormalMaxRate = def.NormalMaxRate
	}
	if cfg.ReducedMaxRate <= 0 {
		cfg.ReducedMaxRate = def.ReducedMaxRate
	}
	if cfg.MinimalMaxRate <= 0 {
		cfg.MinimalMaxRate = def.MinimalMaxRate
	}
}

// SetThermalProvider installs a platform thermal source. A nil provider
// restores the default nominal reading.
func (g *Governor) SetThermalProvider(tp ThermalProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tp == nil {
		tp = nominalThermal{}
	}
	g.thermal = tp
}

// SetTimeProvider sets the time provider for deterministic testing.
// If tp is nil, the package default is used.
func (g *Governor) SetTimeProvider(tp TimeProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeProvider = tp
}

// OnStateChange configures the callback invoked whenever the published
// state changes level. The callback runs on its own goroutine.
func (g *Governor) OnStateChange(cb func(State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = cb

	logrus.WithFields(logrus.Fields{
		"function": "OnStateChange",
		"callback": cb != nil,
	}).Debug("Quality governor callback configured")
}

// State returns the current published quality snapshot.
func (g *Governor) State() State {
	return *g.state.Load()
}

// Level returns the current degradation level.
func (g *Governor) Level() Level {
	return g.state.Load().Level
}

// ObserveLatency folds one compose-and-append duration into the running
// latency average. Called by the composition workers on every frame.
func (g *Governor) ObserveLatency(d time.Duration) {
	g.latencyMu.Lock()
	defer g.latencyMu.Unlock()

	if !g.hasLatency {
		g.avgLatency = d
		g.hasLatency = true
		return
	}
	// Exponential moving average: 90% history, 10% new measurement.
	g.avgLatency = time.Duration(float64(g.avgLatency)*0.9 + float64(d)*0.1)
}

// AvgLatency returns the smoothed frame latency.
func (g *Governor) AvgLatency() time.Duration {
	g.latencyMu.Lock()
	defer g.latencyMu.Unlock()
	return g.avgLatency
}

// Sample runs one state machine step on the given signals and returns
// the resulting state and whether the level changed.
//
// Moderate breaches downgrade one level immediately from Normal, and
// only escalate past Reduced after EscalateSamples consecutive breaches.
// Severe breaches jump straight to Minimal. Upgrades require
// UpgradeSamples consecutive clean samples per step.
func (g *Governor) Sample(sig Signals) (State, bool) {
	g.mu.Lock()

	severity := g.classify(sig)
	oldLevel := g.level

	switch severity {
	case breachSevere:
		g.cleanStreak = 0
		g.breachStreak++
		g.level = LevelMinimal
	case breachModerate:
		g.cleanStreak = 0
		g.breachStreak++
		switch {
		case g.level == LevelNormal:
			g.level = LevelReduced
		case g.level == LevelReduced && g.breachStreak >= g.cfg.EscalateSamples:
			g.level = LevelMinimal
		}
	case breachNone:
		g.breachStreak = 0
		g.cleanStreak++
		if g.cleanStreak >= g.cfg.UpgradeSamples && g.level > LevelNormal {
			g.level--
			g.cleanStreak = 0
		}
	}
	if g.level != oldLevel {
		g.breachStreak = 0
	}

	changed := g.level != oldLevel
	st := g.stateFor(g.level)
	cb := g.onChange

	if changed {
		g.state.Store(&st)
		logrus.WithFields(logrus.Fields{
			"function":    "Sample",
			"old_level":   oldLevel.String(),
			"new_level":   g.level.String(),
			"latency_ms":  sig.AvgFrameLatency.Milliseconds(),
			"heap_bytes":  sig.HeapInUse,
			"thermal":     sig.Thermal.String(),
			"scale":       st.Scale,
			"max_rate":    st.MaxFrameRate,
			"drop_policy": st.DropPolicy.String(),
		}).Info("Quality level changed")
	}
	g.mu.Unlock()

	if changed && cb != nil {
		go cb(st)
	}
	return st, changed
}

// classify maps one signal sample onto a breach severity, taking the
// worst condition across latency, memory, and thermal inputs.
func (g *Governor) classify(sig Signals) breachSeverity {
	severeLatency := time.Duration(float64(g.cfg.FrameInterval) * g.cfg.SevereLatencyFactor)

	if sig.Thermal >= ThermalCritical ||
		sig.AvgFrameLatency > severeLatency ||
		sig.HeapInUse > g.cfg.MemoryHardThreshold {
		return breachSevere
	}
	if sig.Thermal >= ThermalSerious ||
		sig.AvgFrameLatency > g.cfg.FrameInterval ||
		sig.HeapInUse > g.cfg.MemoryThreshold {
		return breachModerate
	}
	return breachNone
}

func (g *Governor) stateFor(level Level) State {
	switch level {
	case LevelReduced:
		return State{Level: level, Scale: 0.5, MaxFrameRate: g.cfg.ReducedMaxRate, DropPolicy: DropNone}
	case LevelMinimal:
		return State{Level: level, Scale: 0.5, MaxFrameRate: g.cfg.MinimalMaxRate, DropPolicy: DropAlternate}
	default:
		return State{Level: LevelNormal, Scale: 1.0, MaxFrameRate: g.cfg.NormalMaxRate, DropPolicy: DropNone}
	}
}

// gather assembles one signal sample from live sources.
func (g *Governor) gather() Signals {
	g.mu.Lock()
	thermal := g.thermal
	g.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Signals{
		AvgFrameLatency: g.AvgLatency(),
		HeapInUse:       ms.HeapInuse,
		Thermal:         thermal.ThermalState(),
	}
}

// Start launches the background sampling loop. The loop runs until the
// context is canceled or Stop is called.
func (g *Governor) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrAlreadyRunning
	}
	g.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	tp := getTimeProvider(g.timeProvider)
	interval := g.cfg.SampleInterval
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"interval": interval,
	}).Info("Starting quality governor sampling loop")

	g.wg.Add(1)
	go g.sampleLoop(loopCtx, tp, interval)
	return nil
}

func (g *Governor) sampleLoop(ctx context.Context, tp TimeProvider, interval time.Duration) {
	defer g.wg.Done()

	ticker := tp.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "sampleLoop",
			}).Debug("Quality governor sampling loop stopped")
			return
		case <-ticker.C:
			g.Sample(g.gather())
		}
	}
}

// Stop halts the background sampling loop and waits for it to exit.
// Stopping an idle governor is a no-op.
func (g *Governor) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	cancel()
	g.wg.Wait()
}

// Reset returns the governor to LevelNormal and clears all streaks.
// Called between recording sessions so one session's pressure does not
// haunt the next.
func (g *Governor) Reset() {
	g.mu.Lock()
	g.level = LevelNormal
	g.cleanStreak = 0
	g.breachStreak = 0
	st := g.stateFor(LevelNormal)
	g.state.Store(&st)
	g.mu.Unlock()

	g.latencyMu.Lock()
	g.avgLatency = 0
	g.hasLatency = false
	g.latencyMu.Unlock()
}
