package replay

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// A capture file records the raw reads from a receiver, one per line:
//
//	# comment
//	START
//	<ns since START>,<hex bytes>
//
// Read boundaries are kept, so replaying a capture reproduces split
// sentences and line noise exactly. Each START begins a new segment whose
// offsets count from zero again; the service writes one per connection.

type Record struct {
	At   time.Duration
	Data []byte
}

// IsStart reports whether r is a START marker.
func (r Record) IsStart() bool { return r.Data == nil }

const startMarker = "START"

type Reader struct {
	sc *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &Reader{sc: sc}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for n := 1; rr.sc.Scan(); n++ {
		rec, ok, err := parseCaptureLine(rr.sc.Text())
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		if ok {
			recs = append(recs, rec)
		}
	}
	if err := rr.sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read capture")
	}
	return recs, nil
}

// parseCaptureLine returns ok=false for blank and comment lines.
func parseCaptureLine(line string) (Record, bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || line[0] == '#':
		return Record{}, false, nil
	case line == startMarker:
		return Record{}, true, nil
	}

	at, payload, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, false, errors.Errorf("expected <ns>,<hex>: %q", line)
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(at), 10, 64)
	if err != nil || ns < 0 {
		return Record{}, false, errors.Errorf("bad offset %q", at)
	}
	data, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(payload), " ", ""))
	if err != nil {
		return Record{}, false, errors.Wrap(err, "bad payload")
	}
	if len(data) == 0 {
		return Record{}, false, errors.New("empty payload")
	}
	return Record{At: time.Duration(ns), Data: data}, true, nil
}

// ReadFile loads a whole capture file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open capture")
	}
	defer f.Close()
	recs, err := NewReader(f).ReadAll()
	return recs, errors.Wrap(err, path)
}

// Writer appends reads to a capture. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	dst   io.WriteCloser
	buf   *bufio.Writer
	start time.Time
	// dirty is set once the current segment has data.
	dirty  bool
	closed bool
}

// CreateWriter truncates path and starts the first segment now.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create capture")
	}
	w := NewWriter(f, time.Now())
	if err := w.writeStart(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter wraps dst without writing a START marker.
func NewWriter(dst io.WriteCloser, start time.Time) *Writer {
	return &Writer{dst: dst, buf: bufio.NewWriterSize(dst, 64<<10), start: start}
}

// Restart begins a new segment at now. An empty current segment is reused
// with its origin moved to now.
func (w *Writer) Restart(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.start = now
	if !w.dirty {
		return nil
	}
	return w.writeStart()
}

func (w *Writer) writeStart() error {
	w.dirty = false
	if _, err := w.buf.WriteString(startMarker + "\n"); err != nil {
		return errors.Wrap(err, "write capture")
	}
	return nil
}

func (w *Writer) WriteChunk(now time.Time, chunk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("capture writer is closed")
	}
	if len(chunk) == 0 {
		return nil
	}
	at := now.Sub(w.start)
	if at < 0 {
		at = 0
	}
	if _, err := fmt.Fprintf(w.buf, "%d,%x\n", at.Nanoseconds(), chunk); err != nil {
		return errors.Wrap(err, "write capture")
	}
	w.dirty = true
	return nil
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	ferr := w.buf.Flush()
	cerr := w.dst.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// TeeReader copies every successful read from r into w, stamped with now().
// Capture failures go to onErr and never fail the read.
func TeeReader(r io.Reader, w *Writer, now func() time.Time, onErr func(error)) io.Reader {
	if now == nil {
		now = time.Now
	}
	return &teeReader{r: r, w: w, now: now, onErr: onErr}
}

type teeReader struct {
	r     io.Reader
	w     *Writer
	now   func() time.Time
	onErr func(error)
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.w.WriteChunk(t.now(), p[:n]); werr != nil && t.onErr != nil {
			t.onErr(werr)
		}
	}
	return n, err
}
