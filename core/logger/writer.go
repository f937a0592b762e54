package logger

import (
	"io"
	"sync"
)

// logSink decouples log producers from slow destinations: lines are queued
// and written by a single goroutine through one multi-writer, so a stalled
// file blocks a handler invocation only once the queue is full. Lines are
// staged in a reusable
// buffer and committed as they land to keep tail -f useful.
type logSink struct {
	lines     chan []byte
	flushReq  chan chan error
	drained   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	dst      io.Writer
	staged   []byte
	writeErr error
}

func newLogSink(outputs []io.Writer, bufSize int) *logSink {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	kept := make([]io.Writer, 0, len(outputs))
	for _, w := range outputs {
		if w != nil {
			kept = append(kept, w)
		}
	}
	s := &logSink{
		lines:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		drained:  make(chan struct{}),
		dst:      io.MultiWriter(kept...),
		staged:   make([]byte, 0, bufSize),
	}
	go s.run()
	return s
}

func (s *logSink) run() {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.commit()
				close(s.drained)
				return
			}
			if len(line) > 0 {
				s.stage(line)
				s.commit()
			}
		case ack := <-s.flushReq:
			ack <- s.commit()
		}
	}
}

// Write enqueues one rendered line. It only blocks when the queue is full,
// trading a short stall for never dropping a line.
func (s *logSink) Write(p []byte) error {
	if err := s.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	select {
	case s.lines <- line:
	default:
		s.lines <- line
	}
	return nil
}

// Flush waits until everything queued so far has reached the destinations.
func (s *logSink) Flush() error {
	if err := s.failure(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	s.flushReq <- ack
	return <-ack
}

// Close drains the queue and reports the first write error encountered.
func (s *logSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.lines)
	})
	<-s.drained
	return s.failure()
}

// stage appends a line to the pending buffer.
func (s *logSink) stage(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return
	}
	s.staged = append(s.staged, line...)
}

// commit pushes the staged buffer to every destination, latching the first
// error so later writes fail fast.
func (s *logSink) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if len(s.staged) == 0 {
		return nil
	}
	if _, err := s.dst.Write(s.staged); err != nil {
		s.writeErr = err
		return err
	}
	s.staged = s.staged[:0]
	return nil
}

func (s *logSink) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
