package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/quality"
)

// EventKind identifies what a pipeline event reports.
type EventKind uint8

const (
	// EventStarted fires when a session reaches Running.
	EventStarted EventKind = iota
	// EventQualityChanged fires when the governor changes level.
	EventQualityChanged
	// EventFrameSkipped fires when frames are dropped; carries the
	// session's cumulative skip count.
	EventFrameSkipped
	// EventFailed fires when a session aborts; the partial result
	// still reports each destination separately.
	EventFailed
	// EventFinished fires when a session stops cleanly.
	EventFinished
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventQualityChanged:
		return "quality_changed"
	case EventFrameSkipped:
		return "frame_skipped"
	case EventFailed:
		return "failed"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is one pipeline notification. Only the fields relevant to the
// kind are set.
type Event struct {
	Kind    EventKind
	Session uuid.UUID

	// Quality is the new snapshot for EventQualityChanged.
	Quality quality.State

	// SkippedCount is the cumulative dropped-frame count for
	// EventFrameSkipped.
	SkippedCount uint64

	// Reason describes the failure for EventFailed.
	Reason string

	// Result carries the session outcome for EventFinished and the
	// partial outcome for EventFailed.
	Result *RecordingResult
}

// Bus broadcasts pipeline events to zero or more subscribers.
//
// Delivery is best-effort with bounded buffers: when a subscriber's
// buffer is full the oldest event is discarded to make room, so a slow
// or absent listener can never apply backpressure to the pipeline.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a listener with the given buffer size and
// returns its channel plus an unsubscribe function. Unsubscribing
// closes the channel. Buffer sizes below one are raised to one.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	logrus.WithFields(logrus.Fields{
		"function":    "Subscribe",
		"subscriber":  id,
		"buffer_size": buffer,
	}).Debug("Event subscriber registered")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber, dropping each
// subscriber's oldest pending event when its buffer is full.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
			continue
		default:
		}
		// Buffer full: shed the oldest event, then retry once. The
		// second send can only fail if the subscriber raced a drain in
		// between, in which case the retry succeeds or the event is
		// simply lost, both acceptable for best-effort delivery.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// Close shuts the bus, closing every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
