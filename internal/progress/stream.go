// Package progress carries acquisition events from the manager to observers.
//
// Each observer owns a Stream: a bounded FIFO that never blocks the
// publisher. When a stream is full the oldest queued event is discarded, so a
// slow observer loses intermediate download samples but always sees the most
// recent state, including the terminal complete/error event.
package progress

import (
	"context"
	"iter"
	"sync"

	"github.com/teamcutter/gportal/internal/domain"
)

type Stream struct {
	mu      sync.Mutex
	buf     []domain.ProgressEvent
	cap     int
	closed  bool
	dropped int
	ready   chan struct{}
}

func NewStream(capacity int) *Stream {
	if capacity < 1 {
		capacity = 1
	}
	return &Stream{
		buf:   make([]domain.ProgressEvent, 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Publish enqueues ev. It is a no-op on a closed stream.
func (s *Stream) Publish(ev domain.ProgressEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buf) == s.cap {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:len(s.buf)-1]
		s.dropped++
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	s.signal()
}

// Close ends the sequence once queued events are drained. Safe to call twice.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available. It returns false once the stream
// is closed and drained, or when ctx is done.
func (s *Stream) Next(ctx context.Context) (domain.ProgressEvent, bool) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return domain.ProgressEvent{}, false
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return domain.ProgressEvent{}, false
		}
	}
}

// All yields events until the stream is closed. The sequence can be ranged
// over once; events consumed by one range are gone for the next.
func (s *Stream) All(ctx context.Context) iter.Seq[domain.ProgressEvent] {
	return func(yield func(domain.ProgressEvent) bool) {
		for {
			ev, ok := s.Next(ctx)
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
