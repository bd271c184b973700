package sim

import (
	"io"
	"sync"
	"time"
)

// Source streams a Receiver's sentences, one epoch per interval, as an
// io.ReadCloser. Reads block until the next epoch is due; Close unblocks
// them with io.EOF.
type Source struct {
	rcv      Receiver
	interval time.Duration
	now      func() time.Time

	buf  []byte
	next time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewSource(rcv Receiver, interval time.Duration) *Source {
	if interval <= 0 {
		interval = time.Second
	}
	return &Source{rcv: rcv, interval: interval, now: time.Now, done: make(chan struct{})}
}

func (s *Source) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if err := s.wait(); err != nil {
			return 0, err
		}
		s.buf = s.rcv.Sentences(s.now())
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *Source) wait() error {
	select {
	case <-s.done:
		return io.EOF
	default:
	}

	now := s.now()
	if s.next.IsZero() {
		s.next = now.Add(s.interval)
		return nil
	}
	if d := s.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-s.done:
			return io.EOF
		case <-t.C:
		}
	}
	s.next = s.next.Add(s.interval)
	if s.next.Before(now) {
		// Fell behind; don't burst to catch up.
		s.next = now.Add(s.interval)
	}
	return nil
}

func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
