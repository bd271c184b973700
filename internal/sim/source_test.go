package sim

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSource_EmitsEpochsAtInterval(t *testing.T) {
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	src := NewSource(Receiver{Path: Orbit{CenterLatDeg: 45, CenterLonDeg: -122}}, time.Millisecond)
	src.now = func() time.Time { return clock }

	epoch := src.rcv.Sentences(clock)
	buf := make([]byte, len(epoch))
	_, err := io.ReadFull(src, buf)
	require.NoError(t, err)
	require.Equal(t, epoch, buf)

	// The clock is frozen, so the second epoch waits for the timer.
	_, err = io.ReadFull(src, buf)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(buf, []byte("$GPRMC,120000.00,")))
}

func TestSource_CloseUnblocksRead(t *testing.T) {
	src := NewSource(Receiver{Path: fixedPath{}}, time.Hour)
	buf := make([]byte, 4096)
	_, err := src.Read(buf)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := src.Read(buf)
		done <- err
	}()
	require.NoError(t, src.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}
