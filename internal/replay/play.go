package replay

import (
	"time"

	"github.com/pkg/errors"
)

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play hands each data chunk to cb, sleeping between chunks so the receiver
// sees the original inter-arrival gaps divided by speedMultiplier (2.0 plays
// twice as fast). A START record begins a new segment: its first chunk is
// delivered without waiting. With loop set, playback restarts from the
// first record until cb returns an error.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(chunk []byte) error) error {
	if speedMultiplier <= 0 {
		return errors.New("speedMultiplier must be > 0")
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if !hasData(records) {
		return errors.New("no data records")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	p := pacer{speed: speedMultiplier, sleeper: sleeper}
	for {
		p.restart(0)
		for _, r := range records {
			if r.IsStart() {
				p.restart(r.At)
				continue
			}
			p.waitFor(r.At)
			if err := cb(r.Data); err != nil {
				return err
			}
		}
		if !loop {
			return nil
		}
	}
}

func hasData(records []Record) bool {
	for _, r := range records {
		if !r.IsStart() {
			return true
		}
	}
	return false
}

// pacer tracks the position within one capture segment.
type pacer struct {
	speed   float64
	sleeper Sleeper

	origin  time.Duration
	last    time.Duration
	started bool
}

func (p *pacer) restart(origin time.Duration) {
	p.origin = origin
	p.last = 0
	p.started = false
}

func (p *pacer) waitFor(at time.Duration) {
	rel := at - p.origin
	if rel < 0 {
		rel = 0
	}
	if p.started && rel > p.last {
		if wait := time.Duration(float64(rel-p.last) / p.speed); wait > 0 {
			p.sleeper.Sleep(wait)
		}
	}
	p.last = rel
	p.started = true
}
