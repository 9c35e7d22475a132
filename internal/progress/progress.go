// Package progress carries run events from the agent loop to whoever is
// watching: an SSE stream, a websocket, or the console.
package progress

import (
	"sync"
)

// Kind classifies an Event.
type Kind string

const (
	// KindThinking reports an intermediate step (turn started, tools dispatched).
	KindThinking Kind = "thinking"
	// KindResult is a non-terminal data row, used by eval streams.
	KindResult Kind = "result"
	// KindError is terminal: the run failed.
	KindError Kind = "error"
	// KindDone is terminal: the run finished.
	KindDone Kind = "done"
)

// Terminal reports whether no further events may follow this kind.
func (k Kind) Terminal() bool {
	return k == KindError || k == KindDone
}

// Event is a single progress notification.
type Event struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message,omitempty"`
	// Payload carries kind-specific data: the run result for done, a row for
	// result, the failure kind for error.
	Payload any `json:"payload,omitempty"`
}

func Thinking(msg string) Event { return Event{Kind: KindThinking, Message: msg} }

func Error(msg string, payload any) Event {
	return Event{Kind: KindError, Message: msg, Payload: payload}
}

func Done(payload any) Event { return Event{Kind: KindDone, Payload: payload} }

func Result(payload any) Event { return Event{Kind: KindResult, Payload: payload} }

// Sink receives events. Implementations must be safe for concurrent use and
// must not block the caller indefinitely.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Emit sends e to s when s is non-nil.
func Emit(s Sink, e Event) {
	if s != nil {
		s.Emit(e)
	}
}

// OnceTerminal wraps s so that nothing passes after the first terminal
// event. Two parties racing to end a run (the loop and a timeout) can both
// emit safely.
func OnceTerminal(s Sink) Sink {
	if s == nil {
		s = Discard
	}
	return &onceTerminal{next: s}
}

type onceTerminal struct {
	mu    sync.Mutex
	ended bool
	next  Sink
}

func (o *onceTerminal) Emit(e Event) {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	if e.Kind.Terminal() {
		o.ended = true
	}
	o.mu.Unlock()
	o.next.Emit(e)
}

// ChannelSink forwards events over a channel and closes it after the first
// terminal event. Events emitted after that, or after Close, are dropped.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	done   chan struct{}
}

// NewChannelSink creates a sink whose channel buffers up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan Event, buffer), done: make(chan struct{})}
}

// Events is the receive side. It is closed after the terminal event.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Emit delivers e. It blocks while the buffer is full unless the consumer
// has gone away (Abandon was called).
func (s *ChannelSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	case <-s.done:
		s.closeLocked()
		return
	}
	if e.Kind.Terminal() {
		s.closeLocked()
	}
}

// Close ends the stream without a terminal event.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Abandon tells the sink the consumer stopped reading, so pending and future
// emits return immediately.
func (s *ChannelSink) Abandon() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Closed reports whether the stream has ended.
func (s *ChannelSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ChannelSink) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Recorder keeps every event in memory; tests and the CLI use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
