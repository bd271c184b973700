package sim

import (
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Script describes a drive or flight as keyframes that the simulated
// receiver interpolates between. Times are Go durations relative to the
// start of the run:
//
//	version: 1
//	duration: 30s        # optional, defaults to the last keyframe
//	keyframes:
//	  - t: 0s
//	    lat_deg: 45.0
//	    lon_deg: -122.0
//	    alt_feet: 3000
//	    ground_kt: 90
//	    track_deg: 90
//	  - t: 20s
//	    lat_deg: 45.01
//	    lon_deg: -122.0
//	    fix: false         # tunnel: no fix until the next keyframe
type Script struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

type Keyframe struct {
	T        time.Duration `yaml:"t"`
	LatDeg   float64       `yaml:"lat_deg"`
	LonDeg   float64       `yaml:"lon_deg"`
	AltFeet  int           `yaml:"alt_feet"`
	GroundKt float64       `yaml:"ground_kt"`
	TrackDeg float64       `yaml:"track_deg"`
	// Fix defaults to true. A keyframe with fix: false starts an outage
	// lasting until the next keyframe.
	Fix *bool `yaml:"fix,omitempty"`
}

func (k Keyframe) hasFix() bool { return k.Fix == nil || *k.Fix }

// Scenario is a validated Script ready to be sampled.
type Scenario struct {
	frames   []Keyframe
	duration time.Duration
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, errors.Wrap(err, "read sim script")
	}
	return ParseScriptYAML(b)
}

func ParseScriptYAML(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, errors.Wrap(err, "parse sim script")
	}
	return s, nil
}

// NewScenario checks script and returns a Scenario for it.
func NewScenario(script Script) (*Scenario, error) {
	switch script.Version {
	case 0, 1:
	default:
		return nil, errors.Errorf("unsupported sim script version %d", script.Version)
	}
	frames := script.Keyframes
	if len(frames) == 0 {
		return nil, errors.New("sim script has no keyframes")
	}
	var prev time.Duration
	for i, kf := range frames {
		switch {
		case kf.T < 0:
			return nil, errors.Errorf("keyframe %d: negative t", i)
		case kf.T < prev:
			return nil, errors.Errorf("keyframe %d: t goes backwards", i)
		case math.Abs(kf.LatDeg) > 90 || math.Abs(kf.LonDeg) > 180:
			return nil, errors.Errorf("keyframe %d: position out of range", i)
		}
		prev = kf.T
	}

	dur := script.Duration
	if dur <= 0 {
		dur = prev
	}
	if dur <= 0 {
		return nil, errors.New("sim script needs a duration or a keyframe after t=0")
	}
	return &Scenario{frames: append([]Keyframe(nil), frames...), duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// At samples the scenario elapsed into the run. With loop the run repeats;
// without it the state holds at the last keyframe.
func (s *Scenario) At(elapsed time.Duration, loop bool) State {
	if s == nil {
		return State{}
	}
	switch {
	case elapsed < 0:
		elapsed = 0
	case loop:
		elapsed %= s.duration
	case elapsed > s.duration:
		elapsed = s.duration
	}

	// First keyframe strictly after elapsed.
	next := sort.Search(len(s.frames), func(i int) bool { return s.frames[i].T > elapsed })
	if next == 0 {
		return s.frames[0].state(s.frames[0], 0)
	}
	from := s.frames[next-1]
	if next == len(s.frames) {
		return from.state(from, 0)
	}
	to := s.frames[next]
	frac := float64(elapsed-from.T) / float64(to.T-from.T)
	return from.state(to, frac)
}

// state blends k toward to by frac in [0,1]. Fix status does not blend: it
// belongs to the segment's opening keyframe.
func (k Keyframe) state(to Keyframe, frac float64) State {
	mix := func(a, b float64) float64 { return a + (b-a)*frac }
	return State{
		LatDeg:   mix(k.LatDeg, to.LatDeg),
		LonDeg:   mix(k.LonDeg, to.LonDeg),
		AltFeet:  int(mix(float64(k.AltFeet), float64(to.AltFeet))),
		GroundKt: mix(k.GroundKt, to.GroundKt),
		TrackDeg: turnToward(k.TrackDeg, to.TrackDeg, frac),
		NoFix:    !k.hasFix(),
	}
}

// turnToward interpolates a heading the short way round the compass.
func turnToward(from, to, frac float64) float64 {
	from, to = wrap360(from), wrap360(to)
	turn := math.Remainder(to-from, 360)
	return wrap360(from + turn*frac)
}

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// ScriptedPath plays a Scenario from Start.
type ScriptedPath struct {
	Scenario *Scenario
	Start    time.Time
	Loop     bool
}

func (p ScriptedPath) StateAt(now time.Time) State {
	return p.Scenario.At(now.Sub(p.Start), p.Loop)
}
