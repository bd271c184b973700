package udp

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeNet records dials and hands out one fakeConn per destination.
type fakeNet struct {
	dialed []string
	conns  []*fakeConn
	failOn string
}

func (n *fakeNet) resolve(network, address string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr(network, address)
}

func (n *fakeNet) dial(network string, _, raddr *net.UDPAddr) (udpConn, error) {
	if network != "udp" {
		return nil, errors.New("unexpected network " + network)
	}
	if raddr.String() == n.failOn {
		return nil, errors.New("unreachable")
	}
	n.dialed = append(n.dialed, raddr.String())
	c := &fakeConn{}
	n.conns = append(n.conns, c)
	return c, nil
}

func TestNewBroadcaster_DialsEveryDestination(t *testing.T) {
	fn := &fakeNet{}
	b, err := newBroadcaster(" 127.0.0.1:10110, 192.168.10.255:2000 ,", fn.resolve, fn.dial)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"127.0.0.1:10110", "192.168.10.255:2000"}, fn.dialed)
	assert.Equal(t, "127.0.0.1:10110,192.168.10.255:2000", b.Dest())
}

func TestNewBroadcaster_Errors(t *testing.T) {
	fn := &fakeNet{}
	_, err := newBroadcaster(" , ", fn.resolve, fn.dial)
	require.EqualError(t, err, "udp dest is empty")

	resolveErr := errors.New("nope")
	_, err = newBroadcaster("bad:addr", func(string, string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}, fn.dial)
	require.ErrorIs(t, err, resolveErr)

	// A later dial failure closes what was already opened.
	fn = &fakeNet{failOn: "127.0.0.1:2"}
	_, err = newBroadcaster("127.0.0.1:1,127.0.0.1:2", fn.resolve, fn.dial)
	require.Error(t, err)
	require.Len(t, fn.conns, 1)
	assert.True(t, fn.conns[0].closed)
}

func TestBroadcaster_SendFansOut(t *testing.T) {
	fn := &fakeNet{}
	b, err := newBroadcaster("127.0.0.1:1,127.0.0.1:2", fn.resolve, fn.dial)
	require.NoError(t, err)

	p := []byte("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	require.NoError(t, b.Send(p))
	require.NoError(t, b.Send(nil))
	for _, c := range fn.conns {
		require.Len(t, c.writes, 1)
		assert.Equal(t, p, c.writes[0])
	}
}

func TestBroadcaster_SendKeepsGoingPastFailure(t *testing.T) {
	fn := &fakeNet{}
	b, err := newBroadcaster("127.0.0.1:1,127.0.0.1:2", fn.resolve, fn.dial)
	require.NoError(t, err)

	boom := errors.New("boom")
	fn.conns[0].writeErr = boom
	err = b.Send([]byte{0x01})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Len(t, fn.conns[1].writes, 1)
}

func TestBroadcaster_CloseThenSend(t *testing.T) {
	fn := &fakeNet{}
	b, err := newBroadcaster("127.0.0.1:1", fn.resolve, fn.dial)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, fn.conns[0].closed)
	require.ErrorIs(t, b.Send([]byte{0x01}), net.ErrClosed)

	require.NoError(t, (&Broadcaster{}).Close())
}
