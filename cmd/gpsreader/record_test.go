package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsreader/internal/nmea"
	"gpsreader/internal/replay"
)

func TestRecordStream_CapturesEveryChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")
	w, err := replay.CreateWriter(path)
	require.NoError(t, err)

	stream := testRMC + "garbage" + testGGA + testRMC
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}
	log, _ := test.NewNullLogger()

	n, err := recordStream(context.Background(), iotest.HalfReader(strings.NewReader(stream)), w, nmea.FramerConfig{ReadSize: 16}, now, log)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 3, n)

	recs, err := replay.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.True(t, recs[0].IsStart())

	var got strings.Builder
	for _, r := range recs[1:] {
		got.Write(r.Data)
	}
	assert.Equal(t, stream, got.String())

	// The capture replays into the same summary.
	s := summarizeCapture(recs, nmea.FramerConfig{}, nmea.Parser{})
	assert.Equal(t, 3, s.Sentences)
}

func TestRecordCommand_RequiresOut(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"record", "--source", "sim"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	require.EqualError(t, cmd.Execute(), "--out is required")
}

func TestRecordCommand_SimForDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.cap")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"record", "--source", "sim", "--sim-lat", "45", "--sim-lon", "-122", "--out", path, "--duration", "300ms"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	require.NoError(t, cmd.Execute())

	recs, err := replay.ReadFile(path)
	require.NoError(t, err)
	s := summarizeCapture(recs, nmea.FramerConfig{}, nmea.Parser{})
	// The simulated receiver emits its first burst immediately.
	assert.Equal(t, map[string]int{"RMC": 1, "GGA": 1, "VTG": 1, "GSA": 1}, s.TypeCounts)
}

func TestRecordCommand_LogFormatFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"record", "--source", "sim", "--out", filepath.Join(t.TempDir(), "x.cap"), "--log-format", "xml"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	require.EqualError(t, cmd.Execute(), `unknown log format "xml"`)
}

type fullDisk struct{}

func (fullDisk) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }
func (fullDisk) Close() error              { return nil }

// closedOnStop behaves like a device that is closed when recording stops:
// once the data runs out it cancels the run and fails the read.
type closedOnStop struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (c *closedOnStop) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.cancel()
		return n, os.ErrClosed
	}
	return n, err
}

func TestRecordStream_StopReportsCaptureWriteFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := replay.NewWriter(fullDisk{}, time.Now())
	log, _ := test.NewNullLogger()

	src := &closedOnStop{r: strings.NewReader(testRMC + testGGA), cancel: cancel}
	n, err := recordStream(ctx, src, w, nmea.FramerConfig{}, time.Now, log)
	assert.Equal(t, 2, n)
	require.ErrorContains(t, err, "write capture")
	require.ErrorContains(t, err, "no space left on device")
}

func TestRecordStream_StopAfterCloseIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	path := filepath.Join(t.TempDir(), "out.cap")
	w, err := replay.CreateWriter(path)
	require.NoError(t, err)
	defer w.Close()
	log, _ := test.NewNullLogger()

	src := &closedOnStop{r: strings.NewReader(testRMC), cancel: cancel}
	n, err := recordStream(ctx, src, w, nmea.FramerConfig{}, time.Now, log)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordStream_ReadErrorWhileRunning(t *testing.T) {
	w := replay.NewWriter(fullDisk{}, time.Now())
	log, _ := test.NewNullLogger()
	boom := errors.New("device unplugged")

	_, err := recordStream(context.Background(), iotest.ErrReader(boom), w, nmea.FramerConfig{}, time.Now, log)
	require.ErrorIs(t, err, boom)
}

func TestRecordCommand_FullDiskFails(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	cmd := newRootCmd()
	cmd.SetArgs([]string{"record", "--source", "sim", "--out", "/dev/full", "--duration", "300ms"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	require.ErrorContains(t, cmd.Execute(), "capture")
}
