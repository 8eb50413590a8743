package telemetry

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Sink is an append-only text channel bound to one log file. Every WriteLine
// is flushed before returning so a session that dies mid-run leaves files
// consistent up to the last completed event. A Sink serializes its own
// writers; unrelated sinks never block each other.
type Sink struct {
	mu      sync.Mutex
	channel Channel
	path    string
	file    *os.File
	w       *bufio.Writer
	closed  bool
}

func openSink(path string, ch Channel) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s sink: %w", ch, err)
	}
	return &Sink{
		channel: ch,
		path:    path,
		file:    f,
		w:       bufio.NewWriter(f),
	}, nil
}

// WriteLine appends one line to the sink and flushes it to disk.
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%s sink: %w", s.channel, ErrSessionClosed)
	}
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// Path returns the log file this sink writes to.
func (s *Sink) Path() string {
	return s.path
}

// Channel returns the channel this sink is bound to.
func (s *Sink) Channel() Channel {
	return s.channel
}

// Close flushes and closes the underlying file. Further writes fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
