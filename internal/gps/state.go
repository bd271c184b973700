package gps

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"gpsreader/internal/nmea"
)

const metersToFeet = 3.280839895013123

// fixState merges records from every sentence type into one view of the
// receiver. It is owned by the service loop.
type fixState struct {
	device string
	talker string

	latDeg float64
	lonDeg float64
	posOK  bool

	groundKt *float64
	trackDeg *float64
	altM     *float64
	geoidM   *float64

	fixQuality *nmea.FixQuality
	fixMode    *nmea.FixType
	satellites *int
	inView     *int
	hdop       *float64
	pdop       *float64
	vdop       *float64

	receiverTime time.Time
	lastFix      time.Time
	valid        bool

	counters Counters
	stats    *fixStats
	recent   *tailBuffer

	state   string
	lastErr string
}

func newFixState(statsWindow, recentLines int) *fixState {
	return &fixState{
		counters: Counters{ByType: map[string]uint64{}},
		stats:    newFixStats(statsWindow),
		recent:   newTailBuffer(recentLines, 256),
		state:    stateConnecting,
	}
}

// apply folds rec into the state. Only a valid fix moves the position.
func (s *fixState) apply(nowUTC time.Time, rec nmea.Record) {
	s.counters.Sentences++
	s.counters.ByType[string(rec.Type)]++
	s.talker = rec.Talker

	if ts, ok := rec.Timestamp(); ok {
		s.receiverTime = ts
	}

	switch rec.Type {
	case nmea.TypeRMC, nmea.TypeGGA, nmea.TypeGLL:
		if rec.Valid != nil {
			s.valid = *rec.Valid
		}
	case nmea.TypeGSA:
		// GSA carries no position, so it can void a fix but not establish one.
		if rec.Valid != nil && !*rec.Valid {
			s.valid = false
		}
	}

	if rec.GGA != nil {
		s.applyGGA(rec.GGA)
	}
	if rec.GSA != nil {
		s.applyGSA(rec.GSA)
	}
	if rec.GSV != nil && rec.GSV.SatellitesInView != nil {
		v := *rec.GSV.SatellitesInView
		s.inView = &v
	}

	// Void fixes still carry the receiver's last guess; don't move on them.
	if rec.Valid != nil && !*rec.Valid {
		return
	}
	if rec.SpeedKnots != nil {
		v := *rec.SpeedKnots
		s.groundKt = &v
	}
	if rec.CourseDeg != nil {
		v := math.Mod(*rec.CourseDeg+360.0, 360.0)
		s.trackDeg = &v
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		return
	}
	s.latDeg = *rec.Latitude
	s.lonDeg = *rec.Longitude
	s.posOK = true
	s.lastFix = nowUTC
	s.stats.add(s.latDeg, s.lonDeg)
}

func (s *fixState) applyGGA(g *nmea.GGA) {
	if g.Quality != nil {
		v := *g.Quality
		s.fixQuality = &v
	}
	if g.Satellites != nil {
		v := *g.Satellites
		s.satellites = &v
	}
	if g.HDOP != nil {
		v := *g.HDOP
		s.hdop = &v
	}
	if g.AltitudeM != nil {
		v := *g.AltitudeM
		s.altM = &v
	}
	if g.GeoidSepM != nil {
		v := *g.GeoidSepM
		s.geoidM = &v
	}
}

func (s *fixState) applyGSA(g *nmea.GSA) {
	if g.FixType != nil {
		v := *g.FixType
		s.fixMode = &v
	}
	if g.PDOP != nil {
		v := *g.PDOP
		s.pdop = &v
	}
	if g.HDOP != nil {
		v := *g.HDOP
		s.hdop = &v
	}
	if g.VDOP != nil {
		v := *g.VDOP
		s.vdop = &v
	}
}

// countFramingError records a framer error. Framing errors never carry a
// sentence, so only the counter moves.
func (s *fixState) countFramingError(err error) {
	s.counters.FramingErrors++
	var fe *nmea.FramingError
	if errors.As(err, &fe) {
		s.counters.DroppedBytes += uint64(fe.Dropped)
	}
}

func (s *fixState) countParseError(err error) {
	switch {
	case errors.Is(err, nmea.ErrChecksumMismatch), errors.Is(err, nmea.ErrMissingChecksum):
		s.counters.ChecksumErrors++
	case errors.Is(err, nmea.ErrUnsupportedSentence):
		s.counters.Unsupported++
	default:
		s.counters.ParseErrors++
	}
}

func (s *fixState) snapshot() Snapshot {
	out := Snapshot{
		Enabled:   true,
		Valid:     s.valid && s.posOK,
		State:     s.state,
		Device:    s.device,
		Talker:    s.talker,
		LastError: s.lastErr,
		Counters:  s.counters.clone(),
		Recent:    s.recent.snapshot(),
		Scatter:   s.stats.summary(),
	}
	if s.posOK {
		lat, lon := s.latDeg, s.lonDeg
		out.LatDeg = &lat
		out.LonDeg = &lon
	}
	if s.altM != nil {
		m := *s.altM
		ft := int(math.Round(m * metersToFeet))
		out.AltM = &m
		out.AltFeet = &ft
	}
	if s.geoidM != nil {
		v := *s.geoidM
		out.GeoidSepM = &v
	}
	if s.groundKt != nil {
		v := *s.groundKt
		out.GroundKt = &v
	}
	if s.trackDeg != nil {
		v := *s.trackDeg
		out.TrackDeg = &v
	}
	if s.fixQuality != nil {
		v := int(*s.fixQuality)
		out.FixQuality = &v
	}
	if s.fixMode != nil {
		v := int(*s.fixMode)
		out.FixMode = &v
	}
	if s.satellites != nil {
		v := *s.satellites
		out.Satellites = &v
	}
	if s.inView != nil {
		v := *s.inView
		out.SatellitesInView = &v
	}
	if s.hdop != nil {
		v := *s.hdop
		out.HDOP = &v
	}
	if s.pdop != nil {
		v := *s.pdop
		out.PDOP = &v
	}
	if s.vdop != nil {
		v := *s.vdop
		out.VDOP = &v
	}
	if !s.receiverTime.IsZero() {
		out.ReceiverUTC = s.receiverTime.UTC().Format(time.RFC3339Nano)
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
		out.lastFix = s.lastFix
	}
	return out
}
