package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"gpsreader/internal/gps"
	"gpsreader/internal/nmea"
)

// sourceFlags are the input options shared by dump and record.
type sourceFlags struct {
	source    string
	driver    string
	device    string
	baud      int
	tcpAddr   string
	gpsdWatch bool
	command   string
	cmdArgs   []string
	replay    string
	speed     float64
	simLat    float64
	simLon    float64

	requireCRLF          bool
	allowMissingChecksum bool
	centuryPivot         int
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", gps.SourceSerial, "Input: serial, tcp, command, replay or sim")
	fs.StringVar(&f.driver, "driver", gps.DriverBugst, "Serial driver: bugst or termios")
	fs.StringVar(&f.device, "device", "", "Serial device (auto-detected when empty)")
	fs.IntVar(&f.baud, "baud", 9600, "Serial baud rate")
	fs.StringVar(&f.tcpAddr, "tcp-addr", "127.0.0.1:2947", "host:port for --source=tcp")
	fs.BoolVar(&f.gpsdWatch, "gpsd-watch", false, "Send a gpsd WATCH request for raw NMEA")
	fs.StringVar(&f.command, "command", "", "Program whose stdout is NMEA, for --source=command")
	fs.StringArrayVar(&f.cmdArgs, "command-arg", nil, "Argument for --command (repeatable)")
	fs.StringVar(&f.replay, "replay", "", "Capture file for --source=replay")
	fs.Float64Var(&f.speed, "speed", 1, "Replay speed multiplier")
	fs.Float64Var(&f.simLat, "sim-lat", 0, "Simulated receiver center latitude")
	fs.Float64Var(&f.simLon, "sim-lon", 0, "Simulated receiver center longitude")
	fs.BoolVar(&f.requireCRLF, "require-crlf", false, "Reject sentences terminated by a bare LF")
	fs.BoolVar(&f.allowMissingChecksum, "allow-missing-checksum", false, "Accept sentences without *HH")
	fs.IntVar(&f.centuryPivot, "century-pivot", nmea.DefaultCenturyPivot, "Two-digit years below this are 20yy")
}

func (f *sourceFlags) gpsConfig() gps.Config {
	return gps.Config{
		Enable:      true,
		Source:      f.source,
		Driver:      f.driver,
		Device:      f.device,
		Baud:        f.baud,
		TCPAddr:     f.tcpAddr,
		GPSDWatch:   f.gpsdWatch,
		Command:     f.command,
		CommandArgs: f.cmdArgs,
		ReplayPath:  f.replay,
		ReplaySpeed: f.speed,
		Sim: gps.SimConfig{
			CenterLatDeg: f.simLat,
			CenterLonDeg: f.simLon,
			Interval:     time.Second,
		},
		Framing: f.framerConfig(),
		Parser:  f.parser(),
	}
}

func (f *sourceFlags) framerConfig() nmea.FramerConfig {
	return nmea.FramerConfig{RequireCRLF: f.requireCRLF}
}

func (f *sourceFlags) parser() nmea.Parser {
	return nmea.Parser{
		AllowMissingChecksum: f.allowMissingChecksum,
		CenturyPivot:         f.centuryPivot,
	}
}

// byteCounter tells an idle read (nothing arrived) apart from a partial
// sentence; only the former should back off.
type byteCounter struct {
	r io.Reader
	n int64
}

func (c *byteCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
