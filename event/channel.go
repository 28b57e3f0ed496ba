package event

import (
	"sync"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/log"
)

// ChannelSink publishes events onto a buffered channel, matching the
// teacher's streaming listener's non-blocking-send-with-backpressure
// idiom: a full channel never blocks the publisher, and a dropped event
// is logged rather than propagated as a failure.
type ChannelSink struct {
	mu       sync.RWMutex
	ch       chan Event
	logger   log.Logger
	closed   bool
	dropped  int
}

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(bufferSize int, logger log.Logger) *ChannelSink {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &ChannelSink{ch: make(chan Event, bufferSize), logger: logger}
}

// Events returns the receive side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Publish implements Sink. It never blocks: if the channel is full or
// already closed, the event is dropped and logged.
func (s *ChannelSink) Publish(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("event dropped: sink closed (kind=%s)", e.Kind)
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped++
		err := engineerr.New(engineerr.ChannelClosed, "event channel full, dropping event")
		s.logger.Warn("%s (kind=%s node=%s)", err.Error(), e.Kind, e.NodeID)
	}
}

// DroppedCount returns how many events have been dropped due to
// backpressure.
func (s *ChannelSink) DroppedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// Close closes the channel. Publish becomes a no-op (plus a logged
// warning) after Close returns.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// InMemorySink records every event it receives, for tests and
// introspection.
type InMemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemorySink returns an empty InMemorySink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Publish implements Sink.
func (s *InMemorySink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot copy of every event recorded so far.
func (s *InMemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// FanOut publishes every event to each of its member sinks. A panic in
// one member is recovered so it cannot take down the others, mirroring
// the teacher's per-listener panic recovery in notifyListeners.
type FanOut struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger log.Logger
}

// NewFanOut returns a FanOut over the given initial sinks.
func NewFanOut(logger log.Logger, sinks ...Sink) *FanOut {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &FanOut{sinks: append([]Sink{}, sinks...), logger: logger}
}

// Add registers another sink.
func (f *FanOut) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Publish implements Sink, delivering to every member synchronously.
func (f *FanOut) Publish(e Event) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		func(s Sink) {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("event sink panicked: %v", r)
				}
			}()
			s.Publish(e)
		}(s)
	}
}
