package agent

import (
	"context"
	"sync"
)

// Stream is the consumer handle for an in-flight engine run. The
// producer blocks when the buffer is full, so no chunk is ever dropped;
// a consumer that stops reading stops the producer with it.
type Stream struct {
	chunks chan Chunk

	closeOnce sync.Once
	closed    chan struct{}

	resultReady chan struct{}
	result      *Result
	err         error
}

func newStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{
		chunks:      make(chan Chunk, buffer),
		closed:      make(chan struct{}),
		resultReady: make(chan struct{}),
	}
}

// Chunks returns the channel to range over. It is closed once the run
// reaches a terminal state.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// Close signals the producer to stop. Safe to call more than once and
// safe to call after the run has already finished.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

// Result blocks until the run reaches a terminal state and returns the
// accumulated result. The error is non-nil only for reasoning-model
// failures and cancellation.
func (s *Stream) Result() (*Result, error) {
	<-s.resultReady
	return s.result, s.err
}

// send delivers one chunk, blocking while the buffer is full. It
// returns false once the consumer has closed the stream or the context
// ended, at which point the producer must stop.
func (s *Stream) send(ctx context.Context, chunk Chunk) bool {
	select {
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	case s.chunks <- chunk:
		return true
	}
}

// finish records the terminal result and closes the chunk channel.
// Called exactly once by the producer.
func (s *Stream) finish(result *Result, err error) {
	s.result = result
	s.err = err
	close(s.resultReady)
	close(s.chunks)
}
