//go:build !linux

package gps

import (
	"io"

	"github.com/pkg/errors"
)

func openTermios(string, Config) (io.ReadCloser, error) {
	return nil, errors.New("the termios serial driver needs linux; use driver bugst")
}
