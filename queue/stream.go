package queue

import (
	"errors"
	"io"
	"os"
	"sync"
)

type readerStream struct {
	rc    io.ReadCloser
	mu    sync.Mutex
	ended bool
}

// NewStream wraps rc so it reports Ended once it has hit EOF or been closed.
func NewStream(rc io.ReadCloser) Stream {
	return &readerStream{rc: rc}
}

// OpenFile opens a local audio file as a Stream.
func OpenFile(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStream(f), nil
}

func (s *readerStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	rc, ended := s.rc, s.ended
	s.mu.Unlock()
	if ended || rc == nil {
		return 0, io.EOF
	}

	n, err := rc.Read(p)
	if errors.Is(err, io.EOF) {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
	}
	return n, err
}

// Close is safe to call more than once.
func (s *readerStream) Close() error {
	s.mu.Lock()
	s.ended = true
	rc := s.rc
	s.rc = nil
	s.mu.Unlock()
	if rc == nil {
		return nil
	}
	return rc.Close()
}

func (s *readerStream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
