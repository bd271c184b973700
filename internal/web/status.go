package web

import (
	"sync/atomic"
	"time"

	"gpsreader/internal/gps"
)

// GPSSource is satisfied by *gps.Service.
type GPSSource interface {
	Snapshot() gps.Snapshot
}

// UDPStats reports forwarder counters; nil when forwarding is disabled.
type UDPStats func() (sent, failed uint64)

type Status struct {
	startUnixNano int64
	gps           GPSSource
	udpDest       atomic.Value // string
	udpFormat     atomic.Value // string
	udpStats      atomic.Value // UDPStats
}

func NewStatus(src GPSSource) *Status {
	s := &Status{gps: src}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.udpDest.Store("")
	s.udpFormat.Store("")
	s.udpStats.Store(UDPStats(nil))
	return s
}

// SetUDP records the forwarding target for the status page.
func (s *Status) SetUDP(dest, format string, stats UDPStats) {
	s.udpDest.Store(dest)
	s.udpFormat.Store(format)
	s.udpStats.Store(stats)
}

type UDPSnapshot struct {
	Dest   string `json:"dest"`
	Format string `json:"format"`
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

type StatusSnapshot struct {
	Service   string       `json:"service"`
	NowUTC    string       `json:"now_utc"`
	UptimeSec int64        `json:"uptime_sec"`
	GPS       gps.Snapshot `json:"gps"`
	UDP       *UDPSnapshot `json:"udp,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if s.gps != nil {
		snap.GPS = s.gps.Snapshot()
	}
	if dest := s.udpDest.Load().(string); dest != "" {
		u := &UDPSnapshot{Dest: dest, Format: s.udpFormat.Load().(string)}
		if fn := s.udpStats.Load().(UDPStats); fn != nil {
			u.Sent, u.Failed = fn()
		}
		snap.UDP = u
	}
	return snap
}
