package gps

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// dialTCP connects to a TCP NMEA feed: gpsd, a serial-to-network bridge or
// a receiver with a network port.
func dialTCP(ctx context.Context, addr string, watch bool, readTimeout time.Duration) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if watch {
		if err := gpsdWatch(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return &deadlineConn{Conn: conn, timeout: readTimeout}, nil
}

// gpsdWatch asks gpsd to relay raw NMEA. gpsd still answers with a few JSON
// lines first; they carry no '$' and the framer discards them.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"nmea\":true}\n"))
	return err
}

// deadlineConn turns an idle read into (0, nil) so the loop sees a pending
// result instead of blocking forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Read(p)
	var ne net.Error
	if err != nil && errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	return n, err
}
