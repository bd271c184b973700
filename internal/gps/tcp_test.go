package gps

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadlineConn_IdleReadIsNotAnError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &deadlineConn{Conn: client, timeout: 10 * time.Millisecond}
	buf := make([]byte, 16)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)

	go func() { _, _ = server.Write([]byte("$GP")) }()
	n, err = c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "$GP", string(buf[:n]))

	require.NoError(t, server.Close())
	_, err = c.Read(buf)
	require.Error(t, err)
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = dialTCP(context.Background(), addr, false, time.Second)
	require.Error(t, err)
}
