package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"gpsreader/internal/gps"
)

const (
	// FormatNMEA forwards each accepted sentence verbatim, CRLF-terminated.
	FormatNMEA = "nmea"
	// FormatJSON forwards each parsed record as one JSON object per datagram.
	FormatJSON = "json"
)

type sender interface {
	Send(payload []byte) error
}

// Forwarder relays service updates as UDP datagrams.
type Forwarder struct {
	out    sender
	format string
	log    logrus.FieldLogger

	sent   atomic.Uint64
	errors atomic.Uint64
}

func NewForwarder(out sender, format string, log logrus.FieldLogger) (*Forwarder, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatNMEA
	}
	if format != FormatNMEA && format != FormatJSON {
		return nil, fmt.Errorf("unknown udp format %q", format)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Forwarder{out: out, format: format, log: log.WithField("component", "udp")}, nil
}

// Run forwards updates until ctx is done or updates is closed. Send
// failures are counted and logged; they never stop forwarding.
func (f *Forwarder) Run(ctx context.Context, updates <-chan gps.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			payload, err := encode(f.format, u)
			if err != nil {
				f.errors.Add(1)
				f.log.WithError(err).Warn("udp encode failed")
				continue
			}
			if err := f.out.Send(payload); err != nil {
				// Log the first failure and then every 100th so an absent
				// listener doesn't flood the log.
				if n := f.errors.Add(1); n == 1 || n%100 == 0 {
					f.log.WithError(err).WithField("failures", n).Warn("udp send failed")
				}
				continue
			}
			f.sent.Add(1)
		}
	}
}

// Stats returns the number of datagrams sent and failed.
func (f *Forwarder) Stats() (sent, failed uint64) {
	return f.sent.Load(), f.errors.Load()
}

func encode(format string, u gps.Update) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.Marshal(u)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		return []byte(u.Sentence + "\r\n"), nil
	}
}
