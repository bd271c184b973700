package gps

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// openSerialPort opens the configured device with the selected driver,
// auto-detecting the device when none is configured.
func openSerialPort(cfg Config) (io.ReadCloser, string, error) {
	device := cfg.Device
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, "", errors.New("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}

	var (
		rc  io.ReadCloser
		err error
	)
	switch cfg.Driver {
	case DriverBugst:
		rc, err = openBugstSerial(device, cfg)
	case DriverTermios:
		rc, err = openTermios(device, cfg)
	default:
		err = errors.Errorf("unknown serial driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, device, errors.Wrapf(err, "device=%s baud=%d", device, cfg.Baud)
	}
	return rc, device, nil
}

func openBugstSerial(device string, cfg Config) (io.ReadCloser, error) {
	parity, err := bugstParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := bugstStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(device, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stop,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open serial port")
	}
	// A timed-out read returns (0, nil), which the framer treats as pending.
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "set read timeout")
	}
	return port, nil
}

func bugstParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return serial.NoParity, nil
	case "odd":
		return serial.OddParity, nil
	case "even":
		return serial.EvenParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	default:
		return 0, errors.Errorf("unsupported parity %q", s)
	}
}

func bugstStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return 0, errors.Errorf("unsupported stop bits %q", s)
	}
}

// listPorts is replaced in tests.
var listPorts = serial.GetPortsList

func autoDetectDevice() string {
	// Prefer what the serial library enumerates, USB CDC first.
	if ports, err := listPorts(); err == nil {
		for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
			for _, p := range ports {
				if strings.HasPrefix(p, prefix) {
					return p
				}
			}
		}
	}

	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
