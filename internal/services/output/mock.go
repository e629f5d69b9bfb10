package output

import (
	"sync"
)

// MockSender records frames in memory. Used for universes without
// network hardware and by tests.
type MockSender struct {
	mu        sync.Mutex
	lastFrame [512]byte
	lastSeq   byte
	count     int
}

// NewMockSender creates a recording sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (s *MockSender) Protocol() string { return "mock" }

func (s *MockSender) Send(sequence byte, values [512]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = values
	s.lastSeq = sequence
	s.count++
	return nil
}

func (s *MockSender) Close() error { return nil }

// LastFrame returns the most recently sent frame and whether any frame
// was sent at all.
func (s *MockSender) LastFrame() ([512]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame, s.count > 0
}

// SendCount returns how many frames were sent.
func (s *MockSender) SendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
