package sim

import (
	"math"
	"time"
)

// State is the simulated receiver's position and motion at one instant.
type State struct {
	LatDeg   float64
	LonDeg   float64
	AltFeet  int
	GroundKt float64
	TrackDeg float64
	// NoFix marks an outage: the receiver reports no position.
	NoFix bool
}

// Path yields a deterministic State for any wall-clock time.
type Path interface {
	StateAt(now time.Time) State
}

const nmPerDegLat = 60.0

// Orbit traces a figure-eight around a fixed center while the altitude
// drifts slowly up and down, so consecutive fixes differ in every field a
// receiver reports. Zero values get usable defaults.
type Orbit struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltFeet      int
	GroundKt     int
	RadiusNm     float64
	Period       time.Duration
	// ClimbFeet is the altitude swing either side of AltFeet.
	ClimbFeet int
}

func (o Orbit) StateAt(now time.Time) State {
	lat, lon, trk := o.Position(now)
	gs := o.GroundKt
	if gs <= 0 {
		gs = 60
	}
	return State{LatDeg: lat, LonDeg: lon, AltFeet: o.altitudeAt(now), GroundKt: float64(gs), TrackDeg: trk}
}

// Position returns the point on the figure-eight at now and the direction
// of travel there. The curve is the 1:2 Lissajous figure
//
//	east  = cos(w)
//	north = sin(2w)/2
//
// scaled to RadiusNm, with w running once around per Period.
func (o Orbit) Position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	radiusNm := o.RadiusNm
	if radiusNm <= 0 {
		radiusNm = 0.5
	}
	radiusDeg := radiusNm / nmPerDegLat

	w := 2 * math.Pi * cyclePhase(now, o.period())
	east := math.Cos(w)
	north := math.Sin(2*w) / 2

	latDeg = o.CenterLatDeg + radiusDeg*north
	// Longitude degrees shrink with latitude.
	lonDeg = o.CenterLonDeg + radiusDeg*east/math.Cos(o.CenterLatDeg*math.Pi/180)

	// Derivatives of the curve give the heading.
	dEast := -math.Sin(w)
	dNorth := math.Cos(2 * w)
	trackDeg = math.Mod(math.Atan2(dEast, dNorth)*180/math.Pi+360, 360)
	return latDeg, lonDeg, trackDeg
}

// altitudeAt oscillates on a cycle twice as long as the orbit, so the same
// point on the figure-eight is not always flown at the same height.
func (o Orbit) altitudeAt(now time.Time) int {
	base := o.AltFeet
	if base == 0 {
		base = 1500
	}
	swing := o.ClimbFeet
	if swing == 0 {
		swing = 200
	}
	w := 2 * math.Pi * cyclePhase(now, 2*o.period())
	return base + int(math.Round(float64(swing)*math.Sin(w)))
}

func (o Orbit) period() time.Duration {
	if o.Period <= 0 {
		return 120 * time.Second
	}
	return o.Period
}

// cyclePhase is how far through a cycle of length d the wall clock is, in
// [0,1).
func cyclePhase(now time.Time, d time.Duration) float64 {
	return float64(now.UnixNano()%d.Nanoseconds()) / float64(d.Nanoseconds())
}
