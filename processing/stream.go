package processing

import (
	"sync"

	"github.com/gogpu/vidflow"
)

// stream is an unbounded FIFO of work items drained by one goroutine.
// Submission never blocks.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}
}

func newStream() *stream {
	s := &stream{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// submit queues fn. It returns false once the stream is closed.
func (s *stream) submit(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.items = append(s.items, fn)
	s.cond.Signal()
	return true
}

// pending returns the number of queued items not yet started.
func (s *stream) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *stream) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.items) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.items) == 0 {
			// Closed and drained.
			s.mu.Unlock()
			return
		}
		fn := s.items[0]
		s.items[0] = nil
		s.items = s.items[1:]
		s.mu.Unlock()

		s.exec(fn)
	}
}

func (s *stream) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			vidflow.Logger().Warn("processing: work item panicked", "panic", r)
		}
	}()
	fn()
}

// close stops accepting work. Queued items still run; the returned
// channel is closed once the worker has drained them and exited.
func (s *stream) close() <-chan struct{} {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return s.done
}
