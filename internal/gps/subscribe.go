package gps

import (
	"sync"
	"sync/atomic"
	"time"

	"gpsreader/internal/nmea"
)

// Update is one parsed sentence as delivered to subscribers.
type Update struct {
	Record      nmea.Record `json:"record"`
	Sentence    string      `json:"sentence"`
	ReceivedUTC time.Time   `json:"received_utc"`
}

type subscribers struct {
	mu     sync.Mutex
	next   int
	chans  map[int]chan Update
	closed bool

	dropped atomic.Uint64
}

// Subscribe registers a channel that receives every parsed sentence.
// Delivery never blocks the reader: when the channel is full the update is
// dropped and counted. The channel is closed by Unsubscribe or Close.
func (s *Service) Subscribe(buffer int) (int, <-chan Update) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)

	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	if s.subs.closed {
		close(ch)
		return -1, ch
	}
	if s.subs.chans == nil {
		s.subs.chans = map[int]chan Update{}
	}
	id := s.subs.next
	s.subs.next++
	s.subs.chans[id] = ch
	return id, ch
}

func (s *Service) Unsubscribe(id int) {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	if ch, ok := s.subs.chans[id]; ok {
		delete(s.subs.chans, id)
		close(ch)
	}
}

func (s *subscribers) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- u:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chans {
		delete(s.chans, id)
		close(ch)
	}
	s.closed = true
}
