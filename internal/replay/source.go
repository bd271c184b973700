package replay

import (
	"io"
)

// NewSource plays records into a byte stream. Reads return the captured
// chunks in order, paced by Play; the stream ends with io.EOF once playback
// finishes (never, when loop is set). Closing the source stops playback.
func NewSource(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := Play(records, speedMultiplier, loop, sleeper, func(chunk []byte) error {
			_, err := pw.Write(chunk)
			return err
		})
		_ = pw.CloseWithError(err)
	}()
	return pr
}
