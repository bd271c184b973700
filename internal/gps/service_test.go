package gps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsreader/internal/nmea"
	"gpsreader/internal/replay"
)

var (
	testRMC = string(nmea.Encode("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	testGGA = string(nmea.Encode("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
)

func newTestService(t *testing.T, cfg Config, open func(ctx context.Context) (io.ReadCloser, string, error)) *Service {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg.Enable = true
	s := New(cfg, logger)
	if open != nil {
		s.open = open
	}
	t.Cleanup(s.Close)
	return s
}

func streamOpener(stream string) func(context.Context) (io.ReadCloser, string, error) {
	return func(context.Context) (io.ReadCloser, string, error) {
		return io.NopCloser(strings.NewReader(stream)), "test", nil
	}
}

func waitDone(t *testing.T, s *Service) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not finish")
	}
}

func TestService_ReadsStreamAndFinishes(t *testing.T) {
	stream := "\xff\xfenoise" +
		testRMC +
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00\r\n" + // bad checksum
		string(nmea.Encode("PUBX,00,123519")) + // proprietary
		"$GPTXT," + strings.Repeat("x", 200) + "\r\n" + // oversized
		testGGA +
		string(nmea.Encode("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M")) // short

	s := newTestService(t, Config{Source: SourceReplay}, streamOpener(stream))
	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	snap := s.Snapshot()
	assert.Equal(t, stateFinished, snap.State)
	assert.Equal(t, "test", snap.Device)
	assert.True(t, snap.Valid)
	assert.InDelta(t, 48.1173, *snap.LatDeg, 1e-4)
	assert.Equal(t, 1789, *snap.AltFeet)

	c := snap.Counters
	assert.Equal(t, uint64(len(stream)), c.BytesRead)
	assert.Equal(t, uint64(2), c.Sentences)
	assert.Equal(t, uint64(1), c.ByType["RMC"])
	assert.Equal(t, uint64(1), c.ByType["GGA"])
	assert.Equal(t, uint64(1), c.ChecksumErrors)
	assert.Equal(t, uint64(1), c.Unsupported)
	assert.Equal(t, uint64(1), c.FramingErrors)
	assert.Equal(t, uint64(1), c.ParseErrors)

	require.Len(t, snap.Recent, 5)
	assert.Equal(t, strings.TrimSpace(testRMC), snap.Recent[0])
}

func TestService_SubscribeReceivesUpdates(t *testing.T) {
	s := newTestService(t, Config{
		Source: SourceSim,
		Sim:    SimConfig{CenterLatDeg: 45, CenterLonDeg: -122, Interval: 10 * time.Millisecond},
	}, nil)

	id, ch := s.Subscribe(16)
	require.GreaterOrEqual(t, id, 0)
	require.NoError(t, s.Start(context.Background()))

	var types []nmea.SentenceType
	for len(types) < 4 {
		select {
		case u, ok := <-ch:
			require.True(t, ok)
			require.True(t, strings.HasPrefix(u.Sentence, "$GP"))
			require.False(t, strings.HasSuffix(u.Sentence, "\n"))
			types = append(types, u.Record.Type)
		case <-time.After(5 * time.Second):
			t.Fatal("no updates")
		}
	}
	require.Equal(t, []nmea.SentenceType{nmea.TypeRMC, nmea.TypeGGA, nmea.TypeVTG, nmea.TypeGSA}, types)

	require.Eventually(t, func() bool { return s.Snapshot().Valid }, 5*time.Second, 10*time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, SourceSim, snap.Source)
	assert.Equal(t, stateConnected, snap.State)
	assert.InDelta(t, 45, *snap.LatDeg, 0.01)

	s.Close()
	for range ch {
	}
	_, ch2 := s.Subscribe(1)
	_, ok := <-ch2
	require.False(t, ok)
}

func TestService_Unsubscribe(t *testing.T) {
	s := newTestService(t, Config{}, nil)
	id, ch := s.Subscribe(1)
	s.Unsubscribe(id)
	_, ok := <-ch
	require.False(t, ok)
	s.Unsubscribe(id)
}

func TestService_SlowSubscriberDropsUpdates(t *testing.T) {
	stream := strings.Repeat(testRMC, 5)
	s := newTestService(t, Config{Source: SourceReplay}, streamOpener(stream))
	_, ch := s.Subscribe(1)
	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	require.Len(t, ch, 1)
	require.Equal(t, uint64(4), s.Snapshot().Counters.DroppedUpdates)
}

func TestService_ReconnectsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	open := func(context.Context) (io.ReadCloser, string, error) {
		switch calls.Add(1) {
		case 2:
			return io.NopCloser(strings.NewReader(testRMC)), "/dev/ttyFAKE", nil
		default:
			return nil, "", errors.New("device not present")
		}
	}
	s := newTestService(t, Config{Source: SourceSerial}, open)
	require.NoError(t, s.Start(context.Background()))

	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = s.Snapshot()
		return snap.Counters.Sentences == 1 && snap.Counters.Reconnects == 1 && snap.State == stateError
	}, 5*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
	assert.Contains(t, snap.LastError, "device not present")
	assert.True(t, snap.Valid)
}

func TestService_TCPSourceWithGPSDWatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	watch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		watch <- line
		_, _ = io.WriteString(conn, `{"class":"VERSION","release":"3.25"}`+"\n")
		_, _ = io.WriteString(conn, testRMC)
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(conn, testGGA)
		// Hold the connection open; idle reads must not drop it.
		time.Sleep(500 * time.Millisecond)
	}()

	s := newTestService(t, Config{
		Source:       SourceTCP,
		TCPAddr:      ln.Addr().String(),
		GPSDWatch:    true,
		ReadTimeout:  20 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, s.Start(context.Background()))

	select {
	case line := <-watch:
		require.Equal(t, "?WATCH={\"enable\":true,\"nmea\":true}\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no WATCH request")
	}

	require.Eventually(t, func() bool { return s.Snapshot().Counters.Sentences == 2 }, 5*time.Second, 10*time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, ln.Addr().String(), snap.TCPAddr)
	assert.Equal(t, uint64(0), snap.Counters.Reconnects)
	assert.Equal(t, uint64(0), snap.Counters.FramingErrors)
}

func TestService_ReplayFileWithCapture(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.log")
	out := filepath.Join(dir, "out.log")

	w, err := replay.CreateWriter(in)
	require.NoError(t, err)
	now := time.Now()
	chunks := []string{testRMC[:10], testRMC[10:] + testGGA[:30], testGGA[30:]}
	for _, c := range chunks {
		require.NoError(t, w.WriteChunk(now, []byte(c)))
	}
	require.NoError(t, w.Close())

	s := newTestService(t, Config{Source: SourceReplay, ReplayPath: in, CapturePath: out}, nil)
	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)
	require.Equal(t, uint64(2), s.Snapshot().Counters.Sentences)
	require.Equal(t, in, s.Snapshot().Device)
	s.Close()

	recs, err := replay.ReadFile(out)
	require.NoError(t, err)
	var got bytes.Buffer
	for _, r := range recs {
		got.Write(r.Data)
	}
	require.Equal(t, testRMC+testGGA, got.String())
}

func TestService_ReplayMissingFileRetries(t *testing.T) {
	s := newTestService(t, Config{Source: SourceReplay, ReplayPath: filepath.Join(t.TempDir(), "missing.log")}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Snapshot().State == stateError }, 5*time.Second, 10*time.Millisecond)
	require.Contains(t, s.Snapshot().LastError, "open capture")
}

func TestService_FixGoesStale(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestService(t, Config{Source: SourceReplay, StaleAfter: 2 * time.Second}, streamOpener(testRMC))
	s.now = func() time.Time { return base }
	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	snap := s.Snapshot()
	require.False(t, snap.FixStale)
	require.Zero(t, snap.FixAgeSec)

	s.now = func() time.Time { return base.Add(3 * time.Second) }
	snap = s.Snapshot()
	require.True(t, snap.FixStale)
	require.InDelta(t, 3, snap.FixAgeSec, 1e-9)
}

func TestService_DisabledAndInvalid(t *testing.T) {
	s := New(Config{}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.False(t, s.Snapshot().Enabled)
	s.Close()

	bad := New(Config{Enable: true, Source: "carrier-pigeon"}, nil)
	require.Error(t, bad.Start(context.Background()))
	require.Contains(t, bad.Snapshot().LastError, "unknown gps source")
	bad.Close()

	var nilSvc *Service
	require.Error(t, nilSvc.Start(context.Background()))
	require.Equal(t, Snapshot{}, nilSvc.Snapshot())
	nilSvc.Close()
}

func TestService_CloseInterruptsBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newTestService(t, Config{Source: SourceSerial}, func(context.Context) (io.ReadCloser, string, error) {
		return pr, "pipe", nil
	})
	require.NoError(t, s.Start(context.Background()))
	_, err := io.WriteString(pw, testRMC)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Snapshot().Counters.Sentences == 1 }, 5*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked")
	}
	require.Equal(t, stateStopped, s.Snapshot().State)
}
