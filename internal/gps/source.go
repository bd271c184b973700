package gps

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"gpsreader/internal/replay"
	"gpsreader/internal/sim"
)

// Open opens the byte source cfg describes, applying the same defaults as
// New. The returned string names the endpoint (device path, address or
// file). Callers own the reader; nothing is captured or reconnected.
func Open(ctx context.Context, cfg Config) (io.ReadCloser, string, error) {
	return openEndpoint(ctx, cfg.withDefaults(), time.Now())
}

func openEndpoint(ctx context.Context, cfg Config, now time.Time) (io.ReadCloser, string, error) {
	switch cfg.Source {
	case SourceSerial:
		return openSerialPort(cfg)
	case SourceTCP:
		rc, err := dialTCP(ctx, cfg.TCPAddr, cfg.GPSDWatch, cfg.ReadTimeout)
		return rc, cfg.TCPAddr, err
	case SourceCommand:
		cs, err := startCommand(ctx, cfg.Command, cfg.CommandArgs, cfg.CommandEnv)
		if err != nil {
			return nil, cfg.Command, err
		}
		return cs, cs.describe(), nil
	case SourceReplay:
		rc, err := openReplay(ctx, cfg)
		return rc, cfg.ReplayPath, err
	case SourceSim:
		rc, err := openSim(cfg.Sim, now)
		return rc, "sim", err
	default:
		return nil, "", errors.Errorf("unknown gps source %q", cfg.Source)
	}
}

// openSource is the service's opener: Open plus the optional capture tee.
func (s *Service) openSource(ctx context.Context) (io.ReadCloser, string, error) {
	rc, endpoint, err := openEndpoint(ctx, s.cfg, s.now())
	if err != nil {
		return nil, endpoint, err
	}

	if s.capture != nil {
		// One capture segment per connection.
		if err := s.capture.Restart(s.now()); err != nil {
			s.log.WithError(err).Warn("gps capture write failed")
		}
		tee := replay.TeeReader(rc, s.capture, s.now, func(err error) {
			s.log.WithError(err).Warn("gps capture write failed")
		})
		rc = readCloser{Reader: tee, Closer: rc}
	}
	return rc, endpoint, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func openReplay(ctx context.Context, cfg Config) (io.ReadCloser, error) {
	if cfg.ReplayPath == "" {
		return nil, errors.New("replay path is required")
	}
	recs, err := replay.ReadFile(cfg.ReplayPath)
	if err != nil {
		return nil, err
	}
	return replay.NewSource(recs, cfg.ReplaySpeed, cfg.ReplayLoop, ctxSleeper{ctx: ctx}), nil
}

func openSim(cfg SimConfig, now time.Time) (io.ReadCloser, error) {
	var path sim.Path = sim.Orbit{
		CenterLatDeg: cfg.CenterLatDeg,
		CenterLonDeg: cfg.CenterLonDeg,
		AltFeet:      cfg.AltFeet,
		GroundKt:     cfg.GroundKt,
		RadiusNm:     cfg.RadiusNm,
		Period:       cfg.Period,
	}
	if cfg.ScriptPath != "" {
		script, err := sim.LoadScript(cfg.ScriptPath)
		if err != nil {
			return nil, err
		}
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, err
		}
		path = sim.ScriptedPath{Scenario: scn, Start: now, Loop: true}
	}
	rcv := sim.Receiver{Path: path, Talker: cfg.Talker, NoFix: cfg.NoFix}
	return sim.NewSource(rcv, cfg.Interval), nil
}

// ctxSleeper lets Close interrupt replay pacing.
type ctxSleeper struct {
	ctx context.Context
}

func (c ctxSleeper) Sleep(d time.Duration) { sleepCtx(c.ctx, d) }
