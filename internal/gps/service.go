package gps

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gpsreader/internal/nmea"
	"gpsreader/internal/replay"
)

// Config controls the GPS reader.
//
// Typical USB receivers (u-blox, SiRF) appear as /dev/ttyACM* or
// /dev/ttyUSB* and output NMEA at 9600 baud by default. Device may be empty to
// auto-detect.
//
// All fields are optional unless noted.
type Config struct {
	Enable bool

	// Source selects how bytes are ingested: "serial", "tcp", "command",
	// "replay" or "sim". When empty, defaults to "serial".
	Source string

	// Driver selects the serial implementation: "bugst" (go.bug.st/serial,
	// any platform) or "termios" (raw linux termios). Defaults to "bugst".
	Driver   string
	Device   string
	Baud     int
	DataBits int
	// Parity is one of none, odd, even, mark, space.
	Parity string
	// StopBits is one of 1, 1.5, 2.
	StopBits string

	// ReadTimeout bounds a single read on serial and TCP sources; an idle
	// read returns no data instead of blocking forever.
	ReadTimeout time.Duration
	// PollInterval is how long the loop waits after a read that produced no
	// bytes.
	PollInterval time.Duration

	// TCPAddr is host:port for Source=="tcp". GPSDWatch sends gpsd a WATCH
	// request for raw NMEA after connecting.
	TCPAddr   string
	GPSDWatch bool

	// Command and CommandArgs name the program for Source=="command"; its
	// stdout is the byte stream. CommandEnv is added to its environment.
	Command     string
	CommandArgs []string
	CommandEnv  map[string]string

	ReplayPath  string
	ReplaySpeed float64
	ReplayLoop  bool

	Sim SimConfig

	Framing nmea.FramerConfig
	Parser  nmea.Parser

	// CapturePath, when set, records every chunk read from the source in
	// the replay capture format.
	CapturePath string

	// StatsWindow is the number of recent positions used for FixScatter.
	StatsWindow int
	// RecentLines is the number of raw sentences kept for the status page.
	RecentLines int
	// StaleAfter marks a fix stale when no position arrived for this long.
	StaleAfter time.Duration
}

// SimConfig drives the built-in simulated receiver.
type SimConfig struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltFeet      int
	GroundKt     int
	RadiusNm     float64
	Period       time.Duration
	Interval     time.Duration
	Talker       string
	NoFix        bool
	// ScriptPath replaces the orbit with a keyframed YAML track.
	ScriptPath string
}

const (
	SourceSerial  = "serial"
	SourceTCP     = "tcp"
	SourceCommand = "command"
	SourceReplay  = "replay"
	SourceSim     = "sim"

	DriverBugst   = "bugst"
	DriverTermios = "termios"
)

const (
	stateConnecting   = "connecting"
	stateConnected    = "connected"
	stateDisconnected = "disconnected"
	stateError        = "error"
	stateFinished     = "finished"
	stateStopped      = "stopped"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

var errSourceFinished = errors.New("end of stream")

func (c Config) withDefaults() Config {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = SourceSerial
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverBugst
	}
	c.Device = strings.TrimSpace(c.Device)
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "none"
	}
	if c.StopBits == "" {
		c.StopBits = "1"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if strings.TrimSpace(c.TCPAddr) == "" {
		c.TCPAddr = gpsdDefaultAddr
	}
	if c.ReplaySpeed <= 0 {
		c.ReplaySpeed = 1
	}
	if c.Sim.Interval <= 0 {
		c.Sim.Interval = time.Second
	}
	if c.StatsWindow == 0 {
		c.StatsWindow = 60
	}
	if c.RecentLines == 0 {
		c.RecentLines = 20
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * time.Second
	}
	return c
}

type Counters struct {
	BytesRead      uint64            `json:"bytes_read"`
	Sentences      uint64            `json:"sentences"`
	ByType         map[string]uint64 `json:"by_type,omitempty"`
	FramingErrors  uint64            `json:"framing_errors"`
	DroppedBytes   uint64            `json:"dropped_bytes"`
	ChecksumErrors uint64            `json:"checksum_errors"`
	ParseErrors    uint64            `json:"parse_errors"`
	Unsupported    uint64            `json:"unsupported"`
	Reconnects     uint64            `json:"reconnects"`
	DroppedUpdates uint64            `json:"dropped_updates"`
}

func (c Counters) clone() Counters {
	out := c
	out.ByType = make(map[string]uint64, len(c.ByType))
	for k, v := range c.ByType {
		out.ByType[k] = v
	}
	return out
}

type Snapshot struct {
	Enabled  bool   `json:"enabled"`
	Valid    bool   `json:"valid"`
	FixStale bool   `json:"fix_stale"`
	State    string `json:"state,omitempty"`

	Source  string `json:"source,omitempty"`
	Driver  string `json:"driver,omitempty"`
	Device  string `json:"device,omitempty"`
	Baud    int    `json:"baud,omitempty"`
	TCPAddr string `json:"tcp_addr,omitempty"`
	Talker  string `json:"talker,omitempty"`

	LatDeg           *float64 `json:"lat_deg,omitempty"`
	LonDeg           *float64 `json:"lon_deg,omitempty"`
	AltM             *float64 `json:"alt_m,omitempty"`
	AltFeet          *int     `json:"alt_feet,omitempty"`
	GeoidSepM        *float64 `json:"geoid_sep_m,omitempty"`
	GroundKt         *float64 `json:"ground_kt,omitempty"`
	TrackDeg         *float64 `json:"track_deg,omitempty"`
	FixQuality       *int     `json:"fix_quality,omitempty"`
	FixMode          *int     `json:"fix_mode,omitempty"`
	Satellites       *int     `json:"satellites,omitempty"`
	SatellitesInView *int     `json:"satellites_in_view,omitempty"`
	HDOP             *float64 `json:"hdop,omitempty"`
	PDOP             *float64 `json:"pdop,omitempty"`
	VDOP             *float64 `json:"vdop,omitempty"`
	FixAgeSec        float64  `json:"fix_age_sec,omitempty"`

	Scatter  *FixScatter `json:"scatter,omitempty"`
	Counters Counters    `json:"counters"`
	Recent   []string    `json:"recent,omitempty"`

	ReceiverUTC string `json:"receiver_utc,omitempty"`
	LastFixUTC  string `json:"last_fix_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`

	lastFix time.Time
}

type Service struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	// open is replaced in tests.
	open func(ctx context.Context) (io.ReadCloser, string, error)

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	capture *replay.Writer

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer

	subs subscribers
}

// New returns a stopped service. A nil logger uses the logrus standard
// logger.
func New(cfg Config, log logrus.FieldLogger) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{
		cfg: cfg,
		log: log.WithField("component", "gps"),
		now: time.Now,
	}
	s.open = s.openSource
	s.last.Store(s.withSourceInfo(Snapshot{Enabled: cfg.Enable}))
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return errors.New("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch s.cfg.Source {
	case SourceSerial, SourceTCP, SourceCommand, SourceReplay, SourceSim:
	default:
		s.setErrorLocked(fmt.Sprintf("unknown gps source %q", s.cfg.Source))
		return errors.Errorf("unknown gps source %q", s.cfg.Source)
	}

	if s.cfg.CapturePath != "" {
		w, err := replay.CreateWriter(s.cfg.CapturePath)
		if err != nil {
			s.setErrorLocked(fmt.Sprintf("gps capture failed: %v", err))
			return err
		}
		s.capture = w
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.log.WithFields(logrus.Fields{
		"source": s.cfg.Source,
		"device": s.cfg.Device,
		"baud":   s.cfg.Baud,
	}).Info("gps enabled")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
	return nil
}

func (s *Service) run(ctx context.Context) {
	st := newFixState(s.cfg.StatsWindow, s.cfg.RecentLines)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			st.state = stateStopped
			s.store(st)
			return
		}

		st.state = stateConnecting
		s.store(st)

		src, device, err := s.open(ctx)
		if err != nil {
			st.state = stateError
			st.lastErr = fmt.Sprintf("gps open failed: %v", err)
			s.store(st)
			s.log.WithError(err).WithField("retry_in", backoff).Warn("gps open failed")
			if !sleepCtx(ctx, backoff) {
				continue
			}
			backoff = nextBackoff(backoff)
			continue
		}

		// Reset backoff after a successful open.
		backoff = initialBackoff
		s.setCloser(src)
		st.device = device
		st.state = stateConnected
		st.lastErr = ""
		s.store(st)
		s.log.WithField("device", device).Info("gps source open")

		err = s.readLoop(ctx, src, st)
		_ = src.Close()
		s.setCloser(nil)

		if ctx.Err() != nil {
			continue
		}
		if errors.Is(err, errSourceFinished) && !s.reopenAtEOF() {
			st.state = stateFinished
			s.store(st)
			s.log.Info("gps source finished")
			return
		}

		st.state = stateDisconnected
		st.lastErr = fmt.Sprintf("gps read stopped: %v", err)
		st.counters.Reconnects++
		s.store(st)
		s.log.WithError(err).WithField("retry_in", backoff).Warn("gps read stopped")
		if sleepCtx(ctx, backoff) {
			backoff = nextBackoff(backoff)
		}
	}
}

// readLoop drives the framer until the source fails or ends.
func (s *Service) readLoop(ctx context.Context, src io.Reader, st *fixState) error {
	cr := &countingReader{r: src}
	fr := nmea.NewFramer(cr, s.cfg.Framing)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		before := cr.n
		res, err := fr.Next()
		st.counters.BytesRead = cr.n
		if err != nil {
			var fe *nmea.FramingError
			if !errors.As(err, &fe) {
				return err
			}
			st.countFramingError(err)
			s.store(st)
			s.log.WithError(err).Debug("gps framing error")
		}

		switch res.Status {
		case nmea.StatusPending:
			if cr.n == before && err == nil {
				sleepCtx(ctx, s.cfg.PollInterval)
			}
		case nmea.StatusEndOfStream:
			return errSourceFinished
		case nmea.StatusMessage:
			s.handleSentence(st, res.Sentence)
		}
	}
}

func (s *Service) handleSentence(st *fixState, sentence []byte) {
	line := strings.TrimRight(string(sentence), "\r\n")
	st.recent.add(line)

	rec, err := s.cfg.Parser.Parse(sentence)
	if err != nil {
		st.countParseError(err)
		s.store(st)
		s.log.WithError(err).WithField("sentence", line).Debug("gps sentence rejected")
		return
	}

	now := s.now().UTC()
	st.apply(now, rec)
	s.store(st)
	s.subs.publish(Update{Record: rec, Sentence: line, ReceivedUTC: now})
}

// reopenAtEOF reports whether a source that ended should be reopened.
// Devices, network feeds and helper programs come back; a finished replay
// does not.
func (s *Service) reopenAtEOF() bool {
	switch s.cfg.Source {
	case SourceSerial, SourceTCP, SourceCommand:
		return true
	default:
		return false
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
	s.subs.closeAll()

	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.log.WithError(err).Warn("gps capture close failed")
		}
		s.capture = nil
	}
}

// Wait blocks until the service loop exits, either because the source
// finished or the service was closed.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	out := v.(Snapshot)
	out.Counters.DroppedUpdates = s.subs.dropped.Load()
	if !out.lastFix.IsZero() {
		age := s.now().Sub(out.lastFix)
		if age < 0 {
			age = 0
		}
		out.FixAgeSec = age.Seconds()
		out.FixStale = age > s.cfg.StaleAfter
	}
	return out
}

func (s *Service) store(st *fixState) {
	s.last.Store(s.withSourceInfo(st.snapshot()))
}

func (s *Service) withSourceInfo(snap Snapshot) Snapshot {
	snap.Source = s.cfg.Source
	switch s.cfg.Source {
	case SourceSerial:
		snap.Driver = s.cfg.Driver
		snap.Baud = s.cfg.Baud
		if snap.Device == "" {
			snap.Device = s.cfg.Device
		}
	case SourceTCP:
		snap.TCPAddr = s.cfg.TCPAddr
	}
	return snap
}

func (s *Service) setCloser(c io.Closer) {
	s.mu.Lock()
	// Swap the closer so Close() can interrupt a blocked read.
	s.closer = c
	s.mu.Unlock()
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	s.last.Store(cur)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}
