//go:build linux

package gps

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var termiosBaud = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

var termiosDataBits = map[int]uint32{0: unix.CS8, 8: unix.CS8, 7: unix.CS7, 6: unix.CS6, 5: unix.CS5}

// termiosCflag builds the character-size, parity, stop-bit and speed bits
// for cfg.
func termiosCflag(cfg Config) (cflag, speed uint32, err error) {
	speed, ok := termiosBaud[cfg.Baud]
	if !ok {
		return 0, 0, errors.Errorf("unsupported baud %d", cfg.Baud)
	}
	size, ok := termiosDataBits[cfg.DataBits]
	if !ok {
		return 0, 0, errors.Errorf("unsupported data bits %d", cfg.DataBits)
	}
	cflag = size | speed | unix.CREAD | unix.CLOCAL

	switch cfg.Parity {
	case "", "none":
	case "even":
		cflag |= unix.PARENB
	case "odd":
		cflag |= unix.PARENB | unix.PARODD
	default:
		return 0, 0, errors.Errorf("termios driver does not support parity %q", cfg.Parity)
	}
	switch cfg.StopBits {
	case "", "1":
	case "2":
		cflag |= unix.CSTOPB
	default:
		return 0, 0, errors.Errorf("termios driver does not support stop bits %q", cfg.StopBits)
	}
	return cflag, speed, nil
}

// openTermios opens path in raw mode using termios ioctls directly. The fd
// is nonblocking so the runtime poller owns it: Close interrupts a pending
// Read and read deadlines work.
func openTermios(path string, cfg Config) (io.ReadCloser, error) {
	cflag, speed, err := termiosCflag(cfg)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err == nil {
		t.Iflag = 0
		t.Oflag = 0
		t.Lflag = 0
		t.Cflag = cflag
		t.Ispeed, t.Ospeed = speed, speed
		t.Cc[unix.VMIN], t.Cc[unix.VTIME] = 1, 0
		err = unix.IoctlSetTermios(fd, unix.TCSETS, t)
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "configure termios")
	}

	return &termiosPort{f: os.NewFile(uintptr(fd), path), timeout: cfg.ReadTimeout}, nil
}

type termiosPort struct {
	f       *os.File
	timeout time.Duration
}

// Read waits at most timeout for data. A quiet line is an empty read, not an
// error, matching the bugst driver.
func (p *termiosPort) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.f.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := p.f.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (p *termiosPort) Close() error { return p.f.Close() }
