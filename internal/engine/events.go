package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Emitter fans engine events into a bounded channel and keeps a rolling log.
// Sends never block; when the consumer lags the event is dropped and
// counted, but it still lands in the log.
type Emitter struct {
	ch      chan domain.Event
	mu      sync.Mutex
	log     []domain.Event
	logSize int
	closed  bool
	dropped atomic.Int64
	now     func() time.Time
}

// NewEmitter creates an emitter with the given channel buffer and log size.
func NewEmitter(buffer, logSize int) *Emitter {
	if buffer < 0 {
		buffer = 0
	}
	return &Emitter{
		ch:      make(chan domain.Event, buffer),
		logSize: logSize,
		now:     time.Now,
	}
}

// Emit records and publishes one event.
func (e *Emitter) Emit(t domain.EventType, cycle int64, payload map[string]any) {
	ev := domain.Event{
		ID:      uuid.New().String(),
		Type:    t,
		At:      e.now().UTC(),
		Cycle:   cycle,
		Payload: payload,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.log = append(e.log, ev)
	if e.logSize > 0 && len(e.log) > e.logSize {
		e.log = append([]domain.Event(nil), e.log[len(e.log)-e.logSize:]...)
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
}

// Events is the outbound stream. It is closed by Close.
func (e *Emitter) Events() <-chan domain.Event { return e.ch }

// Recent returns a copy of the rolling log, oldest first.
func (e *Emitter) Recent() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Event(nil), e.log...)
}

// Dropped counts events the channel could not take.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Close stops further emission and closes the channel.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

var _ domain.EventSink = (*Emitter)(nil)
