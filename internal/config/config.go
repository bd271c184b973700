package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS GPSConfig `yaml:"gps"`
	UDP UDPConfig `yaml:"udp"`
	Web WebConfig `yaml:"web"`
	Log LogConfig `yaml:"log"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is one of serial, tcp, command, replay, sim.
	Source string `yaml:"source"`

	// Serial.
	Driver      string        `yaml:"driver"`
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	Parity      string        `yaml:"parity"`
	StopBits    string        `yaml:"stop_bits"`
	ReadTimeout time.Duration `yaml:"read_timeout"`

	PollInterval time.Duration `yaml:"poll_interval"`

	// TCP.
	TCPAddr   string `yaml:"tcp_addr"`
	GPSDWatch bool   `yaml:"gpsd_watch"`

	Command CommandConfig `yaml:"command"`
	Replay  ReplayConfig  `yaml:"replay"`
	Sim     SimConfig     `yaml:"sim"`
	Framing FramingConfig `yaml:"framing"`
	Parsing ParsingConfig `yaml:"parsing"`
	Capture CaptureConfig `yaml:"capture"`

	StatsWindow int           `yaml:"stats_window"`
	RecentLines int           `yaml:"recent_lines"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

// CommandConfig runs a helper program (e.g. gpspipe -r) and reads NMEA
// from its stdout.
type CommandConfig struct {
	Path string            `yaml:"path"`
	Args []string          `yaml:"args"`
	Env  map[string]string `yaml:"env"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltFeet      int           `yaml:"alt_feet"`
	GroundKt     int           `yaml:"ground_kt"`
	RadiusNm     float64       `yaml:"radius_nm"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
	Talker       string        `yaml:"talker"`
	NoFix        bool          `yaml:"no_fix"`
	// Script is an optional keyframed track (YAML) replacing the orbit.
	Script string `yaml:"script"`
}

type FramingConfig struct {
	MaxSentenceLength int  `yaml:"max_sentence_length"`
	ReadSize          int  `yaml:"read_size"`
	RequireCRLF       bool `yaml:"require_crlf"`
}

type ParsingConfig struct {
	AllowMissingChecksum bool `yaml:"allow_missing_checksum"`
	CenturyPivot         int  `yaml:"century_pivot"`
}

type CaptureConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type UDPConfig struct {
	Enable bool `yaml:"enable"`
	// Dest is host:port, or several separated by commas.
	Dest string `yaml:"dest"`
	// Format is nmea (raw sentences) or json (one record per datagram).
	Format string `yaml:"format"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
	// BufferLines is how many entries /api/logs keeps.
	BufferLines int `yaml:"buffer_lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.GPS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "serial"
	}
	g.Driver = strings.ToLower(strings.TrimSpace(g.Driver))
	if g.Driver == "" {
		g.Driver = "bugst"
	}
	if g.Baud == 0 {
		g.Baud = 9600
	}
	if g.DataBits == 0 {
		g.DataBits = 8
	}
	g.Parity = strings.ToLower(strings.TrimSpace(g.Parity))
	if g.Parity == "" {
		g.Parity = "none"
	}
	if g.StopBits == "" {
		g.StopBits = "1"
	}
	if g.ReadTimeout <= 0 {
		g.ReadTimeout = time.Second
	}
	if g.PollInterval <= 0 {
		g.PollInterval = 100 * time.Millisecond
	}
	if g.TCPAddr == "" {
		g.TCPAddr = "127.0.0.1:2947"
	}
	if g.Replay.Speed == 0 {
		g.Replay.Speed = 1
	}

	// Simulator defaults (safe even if unused).
	if g.Sim.Period <= 0 {
		g.Sim.Period = 120 * time.Second
	}
	if g.Sim.RadiusNm <= 0 {
		g.Sim.RadiusNm = 0.5
	}
	if g.Sim.GroundKt <= 0 {
		g.Sim.GroundKt = 60
	}
	if g.Sim.AltFeet == 0 {
		g.Sim.AltFeet = 1500
	}
	if g.Sim.Interval <= 0 {
		g.Sim.Interval = time.Second
	}
	if g.Sim.Talker == "" {
		g.Sim.Talker = "GP"
	}

	if g.StatsWindow == 0 {
		g.StatsWindow = 60
	}
	if g.RecentLines == 0 {
		g.RecentLines = 20
	}
	if g.StaleAfter <= 0 {
		g.StaleAfter = 3 * time.Second
	}

	c.UDP.Format = strings.ToLower(strings.TrimSpace(c.UDP.Format))
	if c.UDP.Format == "" {
		c.UDP.Format = "nmea"
	}
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.BufferLines <= 0 {
		c.Log.BufferLines = 2000
	}
}

func (c Config) validate() error {
	g := c.GPS
	switch g.Source {
	case "serial":
		switch g.Driver {
		case "bugst", "termios":
		default:
			return fmt.Errorf("gps.driver must be 'bugst' or 'termios'")
		}
		if g.Baud < 0 {
			return fmt.Errorf("gps.baud must be > 0")
		}
		if g.DataBits < 5 || g.DataBits > 8 {
			return fmt.Errorf("gps.data_bits must be in [5,8]")
		}
		switch g.Parity {
		case "none", "odd", "even", "mark", "space":
		default:
			return fmt.Errorf("gps.parity must be one of none, odd, even, mark, space")
		}
		switch g.StopBits {
		case "1", "1.5", "2":
		default:
			return fmt.Errorf("gps.stop_bits must be one of 1, 1.5, 2")
		}
	case "tcp":
		if _, _, err := net.SplitHostPort(g.TCPAddr); err != nil {
			return fmt.Errorf("gps.tcp_addr must be host:port")
		}
	case "command":
		if strings.TrimSpace(g.Command.Path) == "" {
			return fmt.Errorf("gps.command.path is required when gps.source is 'command'")
		}
	case "replay":
		if g.Replay.Path == "" {
			return fmt.Errorf("gps.replay.path is required when gps.source is 'replay'")
		}
		if g.Replay.Speed < 0 {
			return fmt.Errorf("gps.replay.speed must be > 0")
		}
	case "sim":
		if g.Sim.CenterLatDeg < -90 || g.Sim.CenterLatDeg > 90 {
			return fmt.Errorf("gps.sim.center_lat_deg must be in [-90,90]")
		}
		if g.Sim.CenterLonDeg < -180 || g.Sim.CenterLonDeg > 180 {
			return fmt.Errorf("gps.sim.center_lon_deg must be in [-180,180]")
		}
		if len(g.Sim.Talker) != 2 {
			return fmt.Errorf("gps.sim.talker must be two characters")
		}
	default:
		return fmt.Errorf("gps.source must be one of serial, tcp, command, replay, sim")
	}

	if g.Framing.MaxSentenceLength < 0 || g.Framing.ReadSize < 0 {
		return fmt.Errorf("gps.framing sizes must be >= 0")
	}
	if g.Framing.MaxSentenceLength > 0 && g.Framing.MaxSentenceLength < 11 {
		return fmt.Errorf("gps.framing.max_sentence_length must be >= 11")
	}
	if g.Parsing.CenturyPivot < 0 || g.Parsing.CenturyPivot > 99 {
		return fmt.Errorf("gps.parsing.century_pivot must be in [0,99]")
	}
	if g.Capture.Enable {
		if g.Capture.Path == "" {
			return fmt.Errorf("gps.capture.path is required when gps.capture.enable is true")
		}
		if g.Source == "replay" {
			return fmt.Errorf("gps.capture cannot be used with gps.source=replay")
		}
	}

	if c.UDP.Enable {
		if c.UDP.Dest == "" {
			return fmt.Errorf("udp.dest is required when udp.enable is true")
		}
		for _, d := range strings.Split(c.UDP.Dest, ",") {
			if _, _, err := net.SplitHostPort(strings.TrimSpace(d)); err != nil {
				return fmt.Errorf("udp.dest must be host:port (comma-separated for several)")
			}
		}
	}
	switch c.UDP.Format {
	case "nmea", "json":
	default:
		return fmt.Errorf("udp.format must be 'nmea' or 'json'")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	return nil
}
