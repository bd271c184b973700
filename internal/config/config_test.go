package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	g := cfg.GPS
	if g.Source != "serial" || g.Driver != "bugst" {
		t.Fatalf("source=%q driver=%q", g.Source, g.Driver)
	}
	if g.Baud != 9600 || g.DataBits != 8 || g.Parity != "none" || g.StopBits != "1" {
		t.Fatalf("serial defaults: %+v", g)
	}
	if g.ReadTimeout != time.Second || g.PollInterval != 100*time.Millisecond {
		t.Fatalf("timeouts: read=%s poll=%s", g.ReadTimeout, g.PollInterval)
	}
	if g.TCPAddr != "127.0.0.1:2947" {
		t.Fatalf("tcp_addr=%q", g.TCPAddr)
	}
	// Simulator defaults should be populated even if sim is unused.
	if g.Sim.Period <= 0 || g.Sim.RadiusNm <= 0 || g.Sim.GroundKt <= 0 || g.Sim.Talker != "GP" {
		t.Fatalf("expected sim defaults applied: %+v", g.Sim)
	}
	if cfg.UDP.Format != "nmea" || cfg.Web.Listen != ":8080" {
		t.Fatalf("udp=%+v web=%+v", cfg.UDP, cfg.Web)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" || cfg.Log.BufferLines != 2000 {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoad_FullExample(t *testing.T) {
	path := writeTempConfig(t, `
gps:
  enable: true
  source: SIM
  sim:
    center_lat_deg: 45.5
    center_lon_deg: -122.6
    talker: GN
    interval: 500ms
  framing:
    max_sentence_length: 82
    require_crlf: true
  parsing:
    allow_missing_checksum: true
    century_pivot: 70
  capture:
    enable: true
    path: /tmp/gps.cap
udp:
  enable: true
  dest: 192.168.10.255:10110
  format: JSON
web:
  enable: true
  listen: 127.0.0.1:9000
log:
  level: Debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "sim" || cfg.GPS.Sim.Talker != "GN" || cfg.GPS.Sim.Interval != 500*time.Millisecond {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.GPS.Framing.MaxSentenceLength != 82 || !cfg.GPS.Framing.RequireCRLF {
		t.Fatalf("framing=%+v", cfg.GPS.Framing)
	}
	if !cfg.GPS.Parsing.AllowMissingChecksum || cfg.GPS.Parsing.CenturyPivot != 70 {
		t.Fatalf("parsing=%+v", cfg.GPS.Parsing)
	}
	if cfg.UDP.Format != "json" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("udp=%+v log=%+v", cfg.UDP, cfg.Log)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"UnknownSource", "gps:\n  source: usb\n", "gps.source must be one of serial, tcp, command, replay, sim"},
		{"CommandPath", "gps:\n  source: command\n", "gps.command.path is required when gps.source is 'command'"},
		{"UnknownDriver", "gps:\n  driver: cgo\n", "gps.driver must be 'bugst' or 'termios'"},
		{"DataBits", "gps:\n  data_bits: 9\n", "gps.data_bits must be in [5,8]"},
		{"Parity", "gps:\n  parity: weird\n", "gps.parity must be one of none, odd, even, mark, space"},
		{"StopBits", "gps:\n  stop_bits: '3'\n", "gps.stop_bits must be one of 1, 1.5, 2"},
		{"TCPAddr", "gps:\n  source: tcp\n  tcp_addr: localhost\n", "gps.tcp_addr must be host:port"},
		{"ReplayPath", "gps:\n  source: replay\n", "gps.replay.path is required when gps.source is 'replay'"},
		{"ReplaySpeed", "gps:\n  source: replay\n  replay:\n    path: x\n    speed: -1\n", "gps.replay.speed must be > 0"},
		{"SimLat", "gps:\n  source: sim\n  sim:\n    center_lat_deg: 91\n", "gps.sim.center_lat_deg must be in [-90,90]"},
		{"SimTalker", "gps:\n  source: sim\n  sim:\n    talker: GPS\n", "gps.sim.talker must be two characters"},
		{"MaxLength", "gps:\n  framing:\n    max_sentence_length: 5\n", "gps.framing.max_sentence_length must be >= 11"},
		{"Pivot", "gps:\n  parsing:\n    century_pivot: 100\n", "gps.parsing.century_pivot must be in [0,99]"},
		{"CapturePath", "gps:\n  capture:\n    enable: true\n", "gps.capture.path is required when gps.capture.enable is true"},
		{"CaptureReplay", "gps:\n  source: replay\n  replay:\n    path: x\n  capture:\n    enable: true\n    path: y\n", "gps.capture cannot be used with gps.source=replay"},
		{"UDPDest", "udp:\n  enable: true\n", "udp.dest is required when udp.enable is true"},
		{"UDPDestPort", "udp:\n  enable: true\n  dest: 10.0.0.1\n", "udp.dest must be host:port (comma-separated for several)"},
		{"UDPDestList", "udp:\n  enable: true\n  dest: 10.0.0.1:10110,10.0.0.2\n", "udp.dest must be host:port (comma-separated for several)"},
		{"UDPFormat", "udp:\n  format: xml\n", "udp.format must be 'nmea' or 'json'"},
		{"LogFormat", "log:\n  format: xml\n", "log.format must be 'text' or 'json'"},
		{"LogLevel", "log:\n  level: loud\n", "log.level \"loud\" is not a valid level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_CommandSource(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `
gps:
  enable: true
  source: command
  command:
    path: gpspipe
    args: ["-r"]
    env:
      GPSD_HOST: 127.0.0.1
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	c := cfg.GPS.Command
	if c.Path != "gpspipe" || len(c.Args) != 1 || c.Args[0] != "-r" || c.Env["GPSD_HOST"] != "127.0.0.1" {
		t.Fatalf("command=%+v", c)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.HasPrefix(err.Error(), "read config: ") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "gps: [\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "parse config: ") {
		t.Fatalf("err=%v", err)
	}
}
