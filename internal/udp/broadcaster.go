package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

type udpConn interface {
	io.Writer
	io.Closer
}

// Broadcaster sends each datagram to one or more destinations: a subnet
// broadcast address, or chart plotters and EFB apps listening on fixed
// ports.
type Broadcaster struct {
	mu     sync.Mutex
	dests  []string
	conns  []udpConn
	closed bool
}

// NewBroadcaster dials every address in dest, a comma-separated list of
// host:port.
func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(
	dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*Broadcaster, error) {
	dests := SplitDest(dest)
	if len(dests) == 0 {
		return nil, fmt.Errorf("udp dest is empty")
	}

	b := &Broadcaster{dests: dests}
	for _, d := range dests {
		addr, err := resolve("udp", d)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("resolve %s: %w", d, err)
		}
		// DialUDP selects a suitable local address automatically.
		conn, err := dial("udp", nil, addr)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("dial %s: %w", d, err)
		}
		b.conns = append(b.conns, conn)
	}
	return b, nil
}

// SplitDest splits a comma-separated destination list, dropping blanks.
func SplitDest(dest string) []string {
	var out []string
	for _, d := range strings.Split(dest, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (b *Broadcaster) Dest() string { return strings.Join(b.dests, ",") }

// Send writes payload to every destination. A failing destination does not
// stop delivery to the others; all failures are returned joined.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return net.ErrClosed
	}

	var errs []error
	for i, c := range b.conns {
		if _, err := c.Write(payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.dests[i], err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for _, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
