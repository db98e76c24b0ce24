package broadcast_test

import (
	"errors"
	"sync"
)

// stubSink records writes for test assertions.
type stubSink struct {
	mu      sync.Mutex
	writes  [][]byte
	failAll bool
}

func (s *stubSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("stub sink write failure")
	}
	s.writes = append(s.writes, frame)
	return nil
}

func (s *stubSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}
