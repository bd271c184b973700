package nmea

import (
	"bytes"
	"errors"
	"io"
)

const (
	// DefaultMaxSentenceLength bounds a sentence from '$' through its
	// terminator. NMEA 0183 caps standard sentences at 82 bytes; the extra room
	// covers proprietary sentences some receivers emit.
	DefaultMaxSentenceLength = 128

	// DefaultReadSize is how many bytes one Next call asks the source for.
	DefaultReadSize = 1024
)

const (
	startMarker = '$'
	lineFeed    = '\n'
	carriageRet = '\r'
)

// Status is the non-error outcome of Framer.Next.
type Status int

const (
	// StatusPending means no complete sentence is buffered yet and the source
	// has not ended. Callers should retry after a short wait.
	StatusPending Status = iota
	// StatusMessage means Result.Sentence holds one complete sentence.
	StatusMessage
	// StatusEndOfStream means the source is exhausted and the buffer drained.
	StatusEndOfStream
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusMessage:
		return "message"
	case StatusEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Result carries one framed sentence, including '$' and the terminator.
type Result struct {
	Status   Status
	Sentence []byte
}

type FramerConfig struct {
	// MaxSentenceLength defaults to DefaultMaxSentenceLength.
	MaxSentenceLength int
	// ReadSize defaults to DefaultReadSize.
	ReadSize int
	// RequireCRLF rejects sentences terminated by a bare LF. By default LF
	// alone is accepted.
	RequireCRLF bool
}

// Framer extracts NMEA sentences from an unbounded byte stream.
//
// A Framer is not safe for concurrent use; the goroutine calling Next owns
// the internal buffer.
type Framer struct {
	src io.Reader
	cfg FramerConfig

	buf     []byte
	readBuf []byte

	eof bool
}

func NewFramer(src io.Reader, cfg FramerConfig) *Framer {
	if cfg.MaxSentenceLength <= 0 {
		cfg.MaxSentenceLength = DefaultMaxSentenceLength
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	return &Framer{
		src:     src,
		cfg:     cfg,
		buf:     make([]byte, 0, 2*cfg.MaxSentenceLength),
		readBuf: make([]byte, cfg.ReadSize),
	}
}

// Buffered reports how many bytes are held waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next complete sentence, StatusPending, or
// StatusEndOfStream. A *FramingError means a span was discarded; the framer
// has already resynchronized and the caller may simply call Next again.
// Errors from the source other than io.EOF are returned unchanged.
//
// Next performs at most one Read on the source.
func (f *Framer) Next() (Result, error) {
	if res, ok, err := f.extract(); ok {
		return res, err
	}

	if !f.eof {
		n, rerr := f.src.Read(f.readBuf)
		if n > 0 {
			f.buf = append(f.buf, f.readBuf[:n]...)
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				return Result{Status: StatusPending}, rerr
			}
			f.eof = true
		}
		if res, ok, err := f.extract(); ok {
			return res, err
		}
	}

	if !f.eof {
		return Result{Status: StatusPending}, nil
	}
	if len(f.buf) > 0 {
		// Only a '$'-led partial sentence can remain after extract.
		dropped := len(f.buf)
		f.buf = f.buf[:0]
		return Result{Status: StatusEndOfStream}, &FramingError{Kind: ErrTruncatedMessage, Dropped: dropped}
	}
	return Result{Status: StatusEndOfStream}, nil
}

// extract scans the buffer for one sentence. ok is false when nothing can be
// produced from the buffered bytes alone.
func (f *Framer) extract() (Result, bool, error) {
	start := bytes.IndexByte(f.buf, startMarker)
	if start < 0 {
		f.buf = f.buf[:0]
		return Result{}, false, nil
	}
	if start > 0 {
		f.consume(start)
	}

	limit := len(f.buf)
	if limit > f.cfg.MaxSentenceLength {
		limit = f.cfg.MaxSentenceLength
	}
	for i := 1; i < limit; i++ {
		switch f.buf[i] {
		case startMarker:
			f.consume(i)
			return Result{Status: StatusPending}, true, &FramingError{Kind: ErrAbandonedMessage, Dropped: i}
		case lineFeed:
			end := i + 1
			if f.cfg.RequireCRLF && f.buf[i-1] != carriageRet {
				f.consume(end)
				return Result{Status: StatusPending}, true, &FramingError{Kind: ErrBareLineFeed, Dropped: end}
			}
			sentence := append([]byte(nil), f.buf[:end]...)
			f.consume(end)
			return Result{Status: StatusMessage, Sentence: sentence}, true, nil
		}
	}

	if len(f.buf) >= f.cfg.MaxSentenceLength {
		dropped := f.cfg.MaxSentenceLength
		f.consume(dropped)
		return Result{Status: StatusPending}, true, &FramingError{Kind: ErrOversizedMessage, Dropped: dropped}
	}
	return Result{}, false, nil
}

// consume drops the first n buffered bytes, compacting in place so the
// backing array does not grow with the stream.
func (f *Framer) consume(n int) {
	rest := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:rest]
}
