package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsreader/internal/config"
	"gpsreader/internal/gps"
)

func TestGPSConfig_Mapping(t *testing.T) {
	cfg, err := config.Parse([]byte(`
gps:
  enable: true
  source: tcp
  tcp_addr: 10.0.0.2:2947
  gpsd_watch: true
  framing:
    max_sentence_length: 90
  parsing:
    century_pivot: 70
  capture:
    enable: false
    path: /tmp/ignored.cap
  sim:
    script: track.yaml
  command:
    path: gpspipe
    args: ["-r"]
`))
	require.NoError(t, err)

	g := gpsConfig(cfg.GPS)
	assert.True(t, g.Enable)
	assert.Equal(t, gps.SourceTCP, g.Source)
	assert.Equal(t, "10.0.0.2:2947", g.TCPAddr)
	assert.True(t, g.GPSDWatch)
	assert.Equal(t, 90, g.Framing.MaxSentenceLength)
	assert.Equal(t, 70, g.Parser.CenturyPivot)
	assert.Equal(t, "track.yaml", g.Sim.ScriptPath)
	assert.Equal(t, "gpspipe", g.Command)
	assert.Equal(t, []string{"-r"}, g.CommandArgs)
	assert.Empty(t, g.CapturePath, "capture disabled")
}

func TestRunService_ForwardsSimulatedSentences(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
gps:
  enable: true
  source: sim
  sim:
    center_lat_deg: 47.5
    center_lon_deg: -122.3
    interval: 100ms
udp:
  enable: true
  dest: %s
  format: nmea
log:
  level: debug
`, pc.LocalAddr().String())))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stderr bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runService(ctx, cfg, &stderr) }()

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	got := string(buf[:n])
	assert.True(t, strings.HasPrefix(got, "$GP"), got)
	assert.True(t, strings.HasSuffix(got, "\r\n"), got)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runService did not stop")
	}
}

func TestRunService_BadLogLevel(t *testing.T) {
	cfg := config.Config{Log: config.LogConfig{Level: "loud"}}
	err := runService(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRunCommand_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--config", "/nonexistent/gpsreader.yaml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config load failed")
}
